package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/Chative-Todo-Agent/agent/contract"
	"github.com/xeipuuv/gojsonschema"
)

// Kind enumerates the tools the oracle may call. The set is closed.
type Kind int

const (
	KindListAll Kind = iota + 1
	KindCreate
	KindSearch
	KindDeleteByID
)

const (
	ToolGetAllTodos    = "getAllTodos"
	ToolCreateTodo     = "createTodo"
	ToolSearchTodo     = "searchTodo"
	ToolDeleteTodoByID = "deleteTodoById"
)

// Kinds lists every tool in prompt order.
func Kinds() []Kind {
	return []Kind{KindListAll, KindCreate, KindDeleteByID, KindSearch}
}

func (k Kind) Name() string {
	switch k {
	case KindListAll:
		return ToolGetAllTodos
	case KindCreate:
		return ToolCreateTodo
	case KindSearch:
		return ToolSearchTodo
	case KindDeleteByID:
		return ToolDeleteTodoByID
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) String() string {
	return k.Name()
}

// Descriptor is a resolved tool with its declared contract.
type Descriptor struct {
	Kind        Kind
	Name        string
	Signature   string
	Description string

	input *gojsonschema.Schema
	store contractx.TodoStore
}

// Registry resolves oracle-chosen names to descriptors. It is fixed at
// construction and safe for concurrent reads.
type Registry struct {
	byName map[string]Descriptor
}

func NewRegistry(store contractx.TodoStore) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: todo store is required", contractx.ErrValidation)
	}

	byName := make(map[string]Descriptor, len(Kinds()))
	for _, k := range Kinds() {
		spec := specFor(k)
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(spec.inputSchema))
		if err != nil {
			return nil, fmt.Errorf("compile input schema for tool=%s: %w", k, err)
		}
		byName[k.Name()] = Descriptor{
			Kind:        k,
			Name:        k.Name(),
			Signature:   spec.signature,
			Description: spec.description,
			input:       schema,
			store:       store,
		}
	}
	return &Registry{byName: byName}, nil
}

// Resolve looks a tool up by exact, case-sensitive name.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	d, ok := r.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: function=%q", contractx.ErrUnknownTool, name)
	}
	return d, nil
}

// Descriptors returns all tools in prompt order.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	order := make(map[Kind]int, len(Kinds()))
	for i, k := range Kinds() {
		order[k] = i
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].Kind] < order[out[j].Kind] })
	return out
}

// Invoke checks input against the tool's contract and runs it. Contract
// failures wrap contract.ErrInvalidToolInput and the store is not called.
func (d Descriptor) Invoke(ctx context.Context, input json.RawMessage) (any, error) {
	if len(strings.TrimSpace(string(input))) == 0 {
		input = json.RawMessage("null")
	}
	if err := d.validate(input); err != nil {
		return nil, err
	}

	switch d.Kind {
	case KindListAll:
		return d.store.List(ctx)
	case KindCreate:
		text, err := decodeString(input)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: %s requires a non-empty todo", contractx.ErrInvalidToolInput, d.Name)
		}
		return d.store.Create(ctx, text)
	case KindSearch:
		search, err := decodeString(input)
		if err != nil {
			return nil, err
		}
		return d.store.Search(ctx, search)
	case KindDeleteByID:
		id, err := decodeID(input)
		if err != nil {
			return nil, err
		}
		return nil, d.store.DeleteByID(ctx, id)
	default:
		return nil, fmt.Errorf("%w: function=%q", contractx.ErrUnknownTool, d.Name)
	}
}

func (d Descriptor) validate(input json.RawMessage) error {
	result, err := d.input.Validate(gojsonschema.NewBytesLoader(input))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", contractx.ErrInvalidToolInput, d.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s: %s", contractx.ErrInvalidToolInput, d.Name, strings.Join(msgs, "; "))
	}
	return nil
}

func decodeString(input json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return "", fmt.Errorf("%w: expected string: %v", contractx.ErrInvalidToolInput, err)
	}
	return s, nil
}

// decodeID accepts a JSON integer or a string of decimal digits.
func decodeID(input json.RawMessage) (int64, error) {
	var v any
	dec := json.NewDecoder(strings.NewReader(string(input)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: invalid id: %v", contractx.ErrInvalidToolInput, err)
	}

	var raw string
	switch x := v.(type) {
	case json.Number:
		if id, err := x.Int64(); err == nil {
			return id, nil
		}
		f, err := x.Float64()
		if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
			return 0, fmt.Errorf("%w: id %s is not an integer", contractx.ErrInvalidToolInput, x)
		}
		return int64(f), nil
	case string:
		raw = strings.TrimSpace(x)
	default:
		return 0, fmt.Errorf("%w: id must be an integer", contractx.ErrInvalidToolInput)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: id %q is not an integer", contractx.ErrInvalidToolInput, raw)
	}
	return id, nil
}
