package server

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/alimasry/elearning-docstore/model"
	"github.com/alimasry/elearning-docstore/repository"
	"github.com/alimasry/elearning-docstore/store"
)

// MaxPageLimit caps the page size a client may request.
const MaxPageLimit = 100

// Query parameters consumed by pagination; every other parameter on a list
// request is an equality filter.
var pageParams = map[string]bool{
	"page":      true,
	"limit":     true,
	"orderBy":   true,
	"direction": true,
}

type listResponse struct {
	Data  []store.Data `json:"data"`
	Total int          `json:"total"`
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) repo(c *fiber.Ctx) (*repository.Repository, bool) {
	return s.registry.Repository(c.Params("resource"))
}

func unknownResource(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusNotFound, "UNKNOWN_RESOURCE", "unknown resource")
}

func queryInt(c *fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}

// parseFilterValue turns a query string value into the most specific JSON
// scalar it spells. NaN and infinities stay strings.
func parseFilterValue(raw string) any {
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return raw
}

func filtersFromQuery(c *fiber.Ctx) map[string]any {
	filters := make(map[string]any)
	for k, v := range c.Queries() {
		if !pageParams[k] {
			filters[k] = parseFilterValue(v)
		}
	}
	return filters
}

func decodeBody(c *fiber.Ctx) (store.Data, error) {
	var data store.Data
	if err := c.App().Config().JSONDecoder(c.Body(), &data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("body must be a JSON object")
	}
	return data, nil
}

func (s *Server) list(c *fiber.Ctx) error {
	repo, ok := s.repo(c)
	if !ok {
		return unknownResource(c)
	}

	page, err := queryInt(c, "page", repository.DefaultPage)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "page must be a positive integer")
	}
	limit, err := queryInt(c, "limit", repository.DefaultLimit)
	if err != nil || limit > MaxPageLimit {
		return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and "+strconv.Itoa(MaxPageLimit))
	}
	dir := strings.ToLower(c.Query("direction"))
	if dir != "" && dir != "asc" && dir != "desc" {
		return writeError(c, fiber.StatusBadRequest, "INVALID_DIRECTION", "direction must be asc or desc")
	}

	if filters := filtersFromQuery(c); len(filters) > 0 {
		recs, err := repo.FindAll(c.UserContext(), filters)
		if err != nil {
			return s.writeStoreError(c, err)
		}
		return c.JSON(listResponse{Data: recs, Total: len(recs)})
	}

	result, err := repo.Paginate(c.UserContext(), repository.PageRequest{
		Page:      page,
		Limit:     limit,
		OrderBy:   c.Query("orderBy"),
		Direction: dir,
	})
	if err != nil {
		return s.writeStoreError(c, err)
	}
	return c.JSON(result)
}

func (s *Server) search(c *fiber.Ctx) error {
	repo, ok := s.repo(c)
	if !ok {
		return unknownResource(c)
	}

	term := c.Query("q")
	if term == "" {
		return writeError(c, fiber.StatusBadRequest, "MISSING_QUERY", "q is required")
	}
	field := c.Query("field", model.SearchField(repo.Collection()))

	recs, err := repo.Search(c.UserContext(), field, term)
	if err != nil {
		return s.writeStoreError(c, err)
	}
	return c.JSON(listResponse{Data: recs, Total: len(recs)})
}

func (s *Server) get(c *fiber.Ctx) error {
	repo, ok := s.repo(c)
	if !ok {
		return unknownResource(c)
	}

	rec, err := repo.FindByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.writeStoreError(c, err)
	}
	if rec == nil {
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	}
	return c.JSON(rec)
}

// create stores the body under its "id" field when one is given, or under
// a generated ID otherwise.
func (s *Server) create(c *fiber.Ctx) error {
	repo, ok := s.repo(c)
	if !ok {
		return unknownResource(c)
	}

	data, err := decodeBody(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "body must be a JSON object")
	}
	id, _ := data[repository.FieldID].(string)
	delete(data, repository.FieldID)

	var rec store.Data
	if id != "" {
		rec, err = repo.CreateWithID(c.UserContext(), id, data)
	} else {
		rec, err = repo.Create(c.UserContext(), data)
	}
	if err != nil {
		return s.writeStoreError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (s *Server) update(c *fiber.Ctx) error {
	repo, ok := s.repo(c)
	if !ok {
		return unknownResource(c)
	}

	data, err := decodeBody(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "body must be a JSON object")
	}
	delete(data, repository.FieldID)

	rec, err := repo.Update(c.UserContext(), c.Params("id"), data)
	if err != nil {
		return s.writeStoreError(c, err)
	}
	return c.JSON(rec)
}

func (s *Server) remove(c *fiber.Ctx) error {
	repo, ok := s.repo(c)
	if !ok {
		return unknownResource(c)
	}

	if err := repo.Delete(c.UserContext(), c.Params("id")); err != nil {
		return s.writeStoreError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
