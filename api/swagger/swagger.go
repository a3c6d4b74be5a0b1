package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Timetable Engine API",
        "description": "Generates weekly term timetables against a shared teacher ledger and exports them as xlsx, csv or pdf.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http"],
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Timetables", "description": "Timetable generation runs"},
        {"name": "Exports", "description": "Background file exports and signed downloads"}
    ],
    "paths": {
        "/timetables": {
            "post": {
                "tags": ["Timetables"],
                "summary": "Generate weekly timetables for one or more terms",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerateTimetableRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Invalid credits or unschedulable session", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}": {
            "get": {
                "tags": ["Timetables"],
                "summary": "Get a generated run",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/timetables/{id}/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Queue an export of a run",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/CreateExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Get export status and download links",
                "security": [{"Bearer": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/download/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an exported file through a signed token",
                "produces": ["application/octet-stream"],
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "File"},
                    "403": {"description": "Invalid or expired link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SubjectEntry": {
            "type": "object",
            "required": ["name", "teacher", "credits"],
            "properties": {
                "name": {"type": "string", "example": "Math"},
                "teacher": {"type": "string", "example": "T1"},
                "credits": {"type": "string", "example": "3:1:0"}
            }
        },
        "TermDescription": {
            "type": "object",
            "required": ["semester", "termStart", "termEnd", "room", "subjects"],
            "properties": {
                "semester": {"type": "string"},
                "termStart": {"type": "string", "example": "01/08/2024"},
                "termEnd": {"type": "string", "example": "30/11/2024"},
                "room": {"type": "string"},
                "studentCount": {"type": "integer"},
                "subjects": {"type": "array", "items": {"$ref": "#/definitions/SubjectEntry"}},
                "dayCutoffs": {"type": "object", "additionalProperties": {"type": "string"}},
                "outputName": {"type": "string"}
            }
        },
        "TeacherUnavailableSlot": {
            "type": "object",
            "properties": {
                "teacher": {"type": "string"},
                "day": {"type": "string", "example": "Monday"},
                "timeRange": {"type": "string", "example": "9:00-12:00"}
            }
        },
        "GridSpec": {
            "type": "object",
            "properties": {
                "days": {"type": "array", "items": {"type": "string"}},
                "slots": {"type": "array", "items": {"type": "string"}},
                "labSlots": {"type": "array", "items": {"type": "string"}},
                "tutorialExcludedStarts": {"type": "array", "items": {"type": "string"}},
                "batchCycle": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}}
            }
        },
        "GenerateTimetableRequest": {
            "type": "object",
            "required": ["terms"],
            "properties": {
                "terms": {"type": "array", "items": {"$ref": "#/definitions/TermDescription"}},
                "seed": {"type": "integer", "format": "int64"},
                "teacherUnavailable": {"type": "array", "items": {"$ref": "#/definitions/TeacherUnavailableSlot"}},
                "timeGrid": {"$ref": "#/definitions/GridSpec"},
                "export": {"type": "boolean"},
                "format": {"type": "string", "enum": ["xlsx", "csv", "pdf"]}
            }
        },
        "CreateExportRequest": {
            "type": "object",
            "properties": {
                "format": {"type": "string", "enum": ["xlsx", "csv", "pdf"]}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
