package constraints

import "github.com/example/toolforge/pkg/domain"

// DefaultDocument is the built-in closed set from spec.md §6.5, used when no
// constraints YAML document is configured on disk.
func DefaultDocument() Document {
	return Document{
		AllowedByCategory: map[domain.Category][]string{
			domain.CategoryFetch: {
				"requests", "httpx", "urllib3", // data client transport
				"hashlib",
				"warnings",
			},
			domain.CategoryCalculation: {},
			domain.CategoryComposite:   {},
		},
		AlwaysAllowed: []string{
			"pandas", "numpy", "scipy", "statistics",
			"collections", "itertools", "functools",
			"datetime", "decimal", "json", "math", "re", "typing",
		},
		AlwaysBannedModules: []string{
			"os", "sys", "subprocess", "shutil",
			"inspect", "importlib", "ctypes",
			"socket", "http", "http.client", "urllib.request",
			"pickle", "multiprocessing", "threading",
			"tty", "pty", "signal", "code", "codeop", "commands",
		},
		BannedCalls: []string{
			"eval", "exec", "compile", "__import__",
			"globals", "locals", "vars", "dir",
			"getattr", "setattr", "delattr", "hasattr",
			"open", "file", "input", "breakpoint", "exit", "quit",
		},
		BannedAttributes: []string{
			"__class__", "__bases__", "__subclasses__", "__mro__",
			"__dict__", "__globals__", "__code__", "__builtins__",
			"__getattribute__", "__setattr__", "__delattr__",
			"__reduce__", "__reduce_ex__", "__init_subclass__",
			"__class_getitem__", "func_globals", "func_code",
		},
		Limits: DefaultLimits(),
	}
}
