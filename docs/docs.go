// Package docs holds the swagger spec served at /swagger. Regenerate it from
// the handler annotations with `swag init -g cmd/server/main.go -o docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/settlements": {
            "get": {
                "description": "Pages through settlement records, newest first",
                "produces": ["application/json"],
                "tags": ["Settlement"],
                "summary": "List settlements",
                "operationId": "listSettlements",
                "parameters": [
                    {"type": "string", "description": "PENDING, CONFIRMED, QUOTED, PAID or FAILED", "name": "status", "in": "query"},
                    {"type": "string", "description": "Requesting wallet", "name": "wallet", "in": "query"},
                    {"type": "integer", "description": "Page size, at most 100", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/view.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/view.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/view.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Verifies the deposit behind deposit_reference and pays the requesting wallet at most once. Repeating a request returns the stored outcome.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Settlement"],
                "summary": "Settle a deposit",
                "operationId": "createSettlement",
                "parameters": [
                    {
                        "description": "Settlement request",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/settlement.CreateSettlementRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/view.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/view.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/view.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/view.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/view.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/view.ErrorResponse"}}
                }
            }
        },
        "/settlements/{reference}": {
            "get": {
                "description": "Returns the settlement record stored for a deposit reference",
                "produces": ["application/json"],
                "tags": ["Settlement"],
                "summary": "Get a settlement",
                "operationId": "getSettlement",
                "parameters": [
                    {"type": "string", "description": "Deposit reference", "name": "reference", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/view.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/view.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/view.ErrorResponse"}}
                }
            }
        },
        "/oracle/price": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Oracle"],
                "summary": "Get spot price",
                "parameters": [
                    {"type": "string", "description": "Price pair, e.g. SOLUSDT", "name": "pair", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/view.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/view.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/view.ErrorResponse"}}
                }
            }
        },
        "/oracle/cache": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Oracle"],
                "summary": "Price cache statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/view.Response"}}
                }
            }
        },
        "/health/db": {
            "get": {
                "description": "Validates database connectivity",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Database health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/health.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/health.HealthResponse"}}
                }
            }
        },
        "/health/external": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "External dependencies health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/health.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/health.HealthResponse"}}
                }
            }
        },
        "/health/jobs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Background jobs health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/health.HealthResponse"}},
                    "206": {"description": "Partial Content", "schema": {"$ref": "#/definitions/health.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "settlement.CreateSettlementRequest": {
            "type": "object",
            "required": ["claimed_amount", "claimed_currency", "deposit_reference", "payout_currency", "wallet"],
            "properties": {
                "claimed_amount": {"description": "in minor units of the claimed currency", "type": "string", "maxLength": 78},
                "claimed_currency": {"type": "string", "maxLength": 16},
                "deposit_reference": {"type": "string", "maxLength": 128},
                "payout_currency": {"type": "string", "maxLength": 16},
                "wallet": {"type": "string", "maxLength": 44, "minLength": 32}
            }
        },
        "view.Response": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"type": "string"},
                "error_kind": {"type": "string"},
                "message": {"type": "string"},
                "payload": {},
                "retryable": {"type": "boolean"}
            }
        },
        "view.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_kind": {"type": "string"},
                "message": {"type": "string"},
                "retryable": {"type": "boolean"}
            }
        },
        "health.HealthResponse": {
            "type": "object",
            "properties": {
                "checks": {"type": "object"},
                "duration_ms": {"type": "integer"},
                "status": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Settlement Backend API",
	Description:      "Verifies on-chain deposits and pays each one out at most once.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
