package sandbox

// runnerTemplate is the trusted child-process entry point. It is never
// subject to StaticCheck — only the generated tool module it loads is.
// It resolves the entry function by dict lookup on the module namespace
// (never eval), invokes it with unpacked JSON arguments, and writes the
// result as JSON when possible, falling back to repr() (spec.md §4.1, §9).
// A raised exception's traceback goes to the result file and to stderr.
const runnerTemplate = `import json
import sys
import traceback
import importlib.util

def _load_module(path):
    spec = importlib.util.spec_from_file_location("generated_tool", path)
    mod = importlib.util.module_from_spec(spec)
    spec.loader.exec_module(mod)
    return mod

def main():
    module_path, args_path, entry_name, result_path = sys.argv[1:5]
    with open(args_path, "r") as f:
        args = json.load(f)

    try:
        mod = _load_module(module_path)
    except Exception:
        traceback.print_exc()
        with open(result_path, "w") as f:
            json.dump({"ok": False, "error": traceback.format_exc()}, f)
        sys.exit(1)

    namespace = vars(mod)
    fn = namespace.get(entry_name)
    if fn is None or not callable(fn):
        with open(result_path, "w") as f:
            json.dump({"ok": False, "error": "entry function not found: " + entry_name}, f)
        sys.exit(1)

    try:
        if isinstance(args, dict):
            value = fn(**args)
        elif isinstance(args, list):
            value = fn(*args)
        else:
            value = fn(args)
    except Exception:
        traceback.print_exc()
        with open(result_path, "w") as f:
            json.dump({"ok": False, "error": traceback.format_exc()}, f)
        sys.exit(1)

    try:
        json.dumps(value)
        encoded = value
        is_json = True
    except TypeError:
        encoded = repr(value)
        is_json = False

    with open(result_path, "w") as f:
        json.dump({"ok": True, "value": encoded, "is_json": is_json}, f)

if __name__ == "__main__":
    main()
`
