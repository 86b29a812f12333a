package config

// bakefileSchema is the JSON Schema (draft 2020-12) for bakefile
// documents. The structural pass in validation.go reports friendlier
// messages for the common mistakes; this schema is the backstop that
// pins down types and rejects malformed documents wholesale.
const bakefileSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["image", "base", "dependencies", "source", "config", "entrypoint"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "const": 1},
    "image": {
      "type": "object",
      "required": ["name"],
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string", "minLength": 1},
        "tag": {"type": "string", "minLength": 1}
      }
    },
    "base": {
      "type": "object",
      "required": ["ref"],
      "additionalProperties": false,
      "properties": {
        "ref": {"type": "string", "minLength": 1},
        "tag": {"type": "string", "minLength": 1},
        "constraint": {"type": "string", "minLength": 1},
        "platform": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "os": {"type": "string"},
            "architecture": {"type": "string"}
          }
        }
      }
    },
    "dependencies": {
      "type": "object",
      "required": ["manifest"],
      "additionalProperties": false,
      "properties": {
        "manifest": {"type": "string", "minLength": 1},
        "installer": {"type": "string", "minLength": 1},
        "skip_upgrade": {"type": "boolean"}
      }
    },
    "workdir": {"type": "string", "minLength": 1},
    "source": {
      "type": "object",
      "required": ["path"],
      "additionalProperties": false,
      "properties": {
        "path": {"type": "string", "minLength": 1}
      }
    },
    "config": {
      "type": "object",
      "required": ["path"],
      "additionalProperties": false,
      "properties": {
        "path": {"type": "string", "minLength": 1}
      }
    },
    "entrypoint": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "env": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "labels": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`
