// Package server exposes a workspace over HTTP: document listing,
// evaluation and inversion. The surface is a small local collaborator, not
// a multi-tenant API; there is no authentication layer.
package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/benrogmans/lemma/internal/engine"
)

// Handler serves evaluation requests against one workspace.
type Handler struct {
	ws *engine.Workspace
}

func NewHandler(ws *engine.Workspace) *Handler {
	return &Handler{ws: ws}
}

// RegisterRoutes mounts all endpoints on the app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", h.Health)
	app.Get("/documents", h.ListDocuments)
	app.Get("/documents/:name", h.DescribeDocument)
	app.Get("/evaluate/:doc", h.EvaluateGet)
	app.Post("/evaluate", h.EvaluatePost)
	app.Post("/invert", h.Invert)
}

// RequestID attaches a request id to every response for correlation.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Request-Id", uuid.NewString())
		return c.Next()
	}
}

// ErrorHandler maps engine errors to HTTP statuses: ingest errors are 422,
// not-found 404, bad input and inversion errors 400, timeouts 408,
// everything else 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var app *engine.AppError
	if errors.As(err, &app) {
		status := fiber.StatusInternalServerError
		switch app.Code {
		case engine.CodeSyntax, engine.CodeSemantic, engine.CodeLimit:
			status = fiber.StatusUnprocessableEntity
		case engine.CodeNotFound:
			status = fiber.StatusNotFound
		case engine.CodeBadInput, engine.CodeInversion:
			status = fiber.StatusBadRequest
		case engine.CodeTimeout:
			status = fiber.StatusRequestTimeout
		}
		return c.Status(status).JSON(fiber.Map{"error": app})
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiber.Map{"code": "HTTP_ERROR", "message": fiberErr.Message},
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{"code": "INTERNAL", "message": err.Error()},
	})
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "documents": len(h.ws.ListDocuments())})
}

func (h *Handler) ListDocuments(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"documents": h.ws.ListDocuments()})
}

func (h *Handler) DescribeDocument(c *fiber.Ctx) error {
	summary, err := h.ws.DescribeDocument(c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(summary)
}

// EvaluateGet evaluates a document with facts passed as query parameters:
// /evaluate/pricing?quantity=100&is_vip=true&rules=price,discount
func (h *Handler) EvaluateGet(c *fiber.Ctx) error {
	docName := c.Params("doc")

	var factStrings []string
	var rules []string
	for key, vals := range c.Queries() {
		if key == "rules" {
			for _, r := range strings.Split(vals, ",") {
				if r = strings.TrimSpace(r); r != "" {
					rules = append(rules, r)
				}
			}
			continue
		}
		factStrings = append(factStrings, fmt.Sprintf("%s = %s", key, vals))
	}

	overrides, err := h.ws.ParseFacts(factStrings)
	if err != nil {
		return err
	}
	response, err := h.ws.Evaluate(docName, rules, overrides)
	if err != nil {
		return err
	}
	return c.JSON(response)
}

// evaluateRequest is the POST /evaluate payload. Code, when present, is
// ingested into a fresh scratch workspace so ad-hoc documents do not
// pollute the shared one.
type evaluateRequest struct {
	Code  string            `json:"code"`
	Doc   string            `json:"doc"`
	Rules []string          `json:"rules"`
	Facts map[string]string `json:"facts"`
}

func (h *Handler) EvaluatePost(c *fiber.Ctx) error {
	var req evaluateRequest
	if err := c.BodyParser(&req); err != nil {
		return engine.Errorf(engine.CodeBadInput, "invalid request body: %v", err)
	}

	ws := h.ws
	if req.Code != "" {
		ws = engine.WithLimits(h.ws.Limits())
		if err := ws.AddSource(req.Code, "<request>"); err != nil {
			return err
		}
		if req.Doc == "" {
			if docs := ws.ListDocuments(); len(docs) == 1 {
				req.Doc = docs[0]
			}
		}
	}
	if req.Doc == "" {
		return engine.Errorf(engine.CodeBadInput, "missing document name")
	}

	overrides, err := ws.ParseFacts(factStrings(req.Facts))
	if err != nil {
		return err
	}
	response, err := ws.Evaluate(req.Doc, req.Rules, overrides)
	if err != nil {
		return err
	}
	return c.JSON(response)
}

// invertRequest is the POST /invert payload. Target uses the CLI notation:
// "any", "veto", "veto:<message>", or "[op]<value>".
type invertRequest struct {
	Doc    string            `json:"doc"`
	Rule   string            `json:"rule"`
	Target string            `json:"target"`
	Fact   string            `json:"fact"` // when set, returns the valid domain instead
	Facts  map[string]string `json:"facts"`
}

func (h *Handler) Invert(c *fiber.Ctx) error {
	var req invertRequest
	if err := c.BodyParser(&req); err != nil {
		return engine.Errorf(engine.CodeBadInput, "invalid request body: %v", err)
	}
	givens, err := h.ws.ParseFacts(factStrings(req.Facts))
	if err != nil {
		return err
	}

	if req.Fact != "" {
		dom, err := h.ws.ValidDomain(req.Doc, req.Rule, req.Fact, givens)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"fact": req.Fact, "domain": dom})
	}

	target, err := engine.ParseTarget(req.Target)
	if err != nil {
		return err
	}
	shape, err := h.ws.Invert(req.Doc, req.Rule, target, givens)
	if err != nil {
		return err
	}
	return c.JSON(shape)
}

func factStrings(facts map[string]string) []string {
	out := make([]string, 0, len(facts))
	for name, val := range facts {
		out = append(out, fmt.Sprintf("%s = %s", name, val))
	}
	return out
}
