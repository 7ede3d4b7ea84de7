package tool

type toolSpec struct {
	signature   string
	description string
	inputSchema string
}

func specFor(k Kind) toolSpec {
	switch k {
	case KindListAll:
		return toolSpec{
			signature:   "getAllTodos()",
			description: "Returns all the todos from the database.",
			inputSchema: `{}`,
		}
	case KindCreate:
		return toolSpec{
			signature:   "createTodo(todo: string)",
			description: "Creates a new todo from the given text and returns the id of the created todo.",
			inputSchema: `{"type": "string", "minLength": 1}`,
		}
	case KindSearch:
		return toolSpec{
			signature:   "searchTodo(search: string)",
			description: "Returns all todos whose text contains the search string, ignoring case.",
			inputSchema: `{"type": "string"}`,
		}
	case KindDeleteByID:
		return toolSpec{
			signature:   "deleteTodoById(id: string)",
			description: "Deletes the todo with the given id. Succeeds when no such todo exists.",
			inputSchema: `{"type": ["integer", "string"], "minimum": 0, "pattern": "^\\s*[0-9]+\\s*$"}`,
		}
	default:
		return toolSpec{inputSchema: `{"not": {}}`}
	}
}
