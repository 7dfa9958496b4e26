// Package docs registers the OpenAPI document served under /swagger.
// Regenerate the paths with `swag init -g cmd/server/main.go` after
// changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/api/webhooks/email/{org}": {
            "post": {
                "tags": ["webhooks"],
                "summary": "Receive inbound email",
                "parameters": [
                    {"type": "string", "name": "org", "in": "path", "required": true},
                    {"type": "string", "name": "X-Webhook-Secret", "in": "header"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/auth/login": {
            "post": {
                "tags": ["auth"],
                "summary": "Agent login",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/drafts/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["drafts"],
                "summary": "Get draft",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/tickets/{id}/drafts": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["drafts"],
                "summary": "List drafts for a ticket",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/tickets/{id}/context": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["tickets"],
                "summary": "Get ticket context",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/drafts/{id}/approve": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["drafts"],
                "summary": "Approve and send draft",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/drafts/{id}/modify": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["drafts"],
                "summary": "Modify draft",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/drafts/{id}/reject": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["drafts"],
                "summary": "Reject draft",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/threads/{id}/grade": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["grading"],
                "summary": "Grade a candidate reply",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/analytics": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["analytics"],
                "summary": "Analytics summary",
                "parameters": [
                    {"type": "string", "name": "period", "in": "query"},
                    {"type": "string", "name": "organization_id", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}
            }
        },
        "/healthz": {
            "get": {"tags": ["health"], "summary": "Health check", "responses": {"200": {"description": "OK"}}}
        },
        "/healthz/db": {
            "get": {"tags": ["health"], "summary": "Database readiness", "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Helpdesk API",
	Description:      "Inbound email drafting, review and grading for support agents",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
