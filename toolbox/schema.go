package toolbox

var calculatorSchema = []byte(`
  {
    "type": "object",
    "properties": {
      "expression": {
        "type": "string",
        "description": "Mathematical expression to evaluate (e.g., '2 + 3 * 4')"
      }
    },
    "required": ["expression"]
  }
`)

var fileReaderSchema = []byte(`
  {
    "type": "object",
    "properties": {
      "path": {
        "type": "string",
        "description": "Path to the file to read"
      }
    },
    "required": ["path"]
  }
`)

var fileWriterSchema = []byte(`
  {
    "type": "object",
    "properties": {
      "path": {
        "type": "string",
        "description": "Path where to write the file"
      },
      "content": {
        "type": "string",
        "description": "Content to write to the file"
      }
    },
    "required": ["path", "content"]
  }
`)

var systemTimeSchema = []byte(`
  {
    "type": "object",
    "properties": {}
  }
`)

var listFilesSchema = []byte(`
  {
    "type": "object",
    "properties": {
      "directory": {
        "type": "string",
        "description": "Directory path to list files from (default: current directory)"
      },
      "pattern": {
        "type": "string",
        "description": "Optional glob pattern to filter names (e.g., '*.txt')"
      }
    }
  }
`)

var addSchema = []byte(`
  {
    "type": "object",
    "properties": {
      "a": {
        "type": "number"
      },
      "b": {
        "type": "number"
      }
    },
    "required": ["a", "b"]
  }
`)

var editFileSchema = []byte(`
  {
    "type": "object",
    "properties": {
      "path": {
        "type": "string",
        "description": "Path to the file to edit"
      },
      "old_text": {
        "type": "string",
        "description": "Exact text to replace"
      },
      "new_text": {
        "type": "string",
        "description": "Replacement text"
      },
      "dry_run": {
        "type": "boolean",
        "description": "Report the diff without applying it"
      }
    },
    "required": ["path", "old_text", "new_text"]
  }
`)

var systemInfoSchema = []byte(`
  {
    "type": "object",
    "properties": {}
  }
`)
