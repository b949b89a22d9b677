package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fleetdesk/console/internal/apiclient"
)

// Requester is satisfied by *apiclient.Client.
type Requester interface {
	Request(ctx context.Context, method, path string, body any, opts ...apiclient.RequestOption) (json.RawMessage, error)
}

func notFound(format string, args ...any) *apiclient.Error {
	return apiclient.NewError(http.StatusNotFound, http.StatusNotFound, fmt.Sprintf(format, args...), nil)
}

func badRequest(format string, args ...any) *apiclient.Error {
	return apiclient.NewError(http.StatusBadRequest, http.StatusBadRequest, fmt.Sprintf(format, args...), nil)
}

type Service struct {
	client Requester
	res    Resource
}

func NewService(client Requester, name string) (*Service, error) {
	res, ok := Catalog[name]
	if !ok {
		return nil, notFound("Unknown resource %q", name)
	}
	return &Service{client: client, res: res}, nil
}

// List always returns a list: a result that isn't an array comes back empty.
func (s *Service) List(ctx context.Context, query url.Values) ([]json.RawMessage, error) {
	raw, err := s.client.Request(ctx, http.MethodGet, s.res.ListPath(), nil, apiclient.WithQuery(query))
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return []json.RawMessage{}, nil
	}
	return items, nil
}

func (s *Service) Get(ctx context.Context, id string) (json.RawMessage, error) {
	if s.res.NoGet {
		return nil, notFound("%s can't be fetched one at a time", s.res.Name)
	}
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.client.Request(ctx, http.MethodGet, s.res.ItemPath(id), nil)
}

func (s *Service) Create(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	if err := requireBody(body); err != nil {
		return nil, err
	}
	return s.client.Request(ctx, http.MethodPost, s.res.CreatePath(), body)
}

func (s *Service) Update(ctx context.Context, id string, body json.RawMessage) (json.RawMessage, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if err := requireBody(body); err != nil {
		return nil, err
	}
	return s.client.Request(ctx, http.MethodPut, s.res.UpdatePath(id), body)
}

func (s *Service) Delete(ctx context.Context, id string) (json.RawMessage, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.client.Request(ctx, http.MethodDelete, s.res.DeletePath(id), nil)
}

// Do runs a named action. id must be empty for collection actions and set for the others.
func (s *Service) Do(ctx context.Context, name, id string, body json.RawMessage) (json.RawMessage, error) {
	action, ok := s.res.Actions[name]
	if !ok {
		return nil, notFound("%s has no %q action", s.res.Name, name)
	}

	path := action.Path
	if action.Collection {
		if id != "" {
			return nil, badRequest("%s %s doesn't take an id", s.res.Name, name)
		}
	} else {
		if err := checkID(id); err != nil {
			return nil, err
		}
		path += "/" + id
	}

	if action.Status != nil {
		var payload struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || !action.Status.Valid(payload.Status) {
			return nil, badRequest("status must be one of %s", strings.Join(action.Status.Values, ", "))
		}
		return s.client.Request(ctx, action.Method, path, payload)
	}

	var reqBody any
	if len(body) > 0 && action.Method != http.MethodGet {
		reqBody = body
	}
	return s.client.Request(ctx, action.Method, path, reqBody)
}

func Report(ctx context.Context, client Requester, name string, query url.Values) (json.RawMessage, error) {
	path, ok := Reports[name]
	if !ok {
		return nil, notFound("Unknown report %q", name)
	}
	return client.Request(ctx, http.MethodGet, path, nil, apiclient.WithQuery(query))
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, "/?#") {
		return badRequest("invalid id %q", id)
	}
	return nil
}

func requireBody(body json.RawMessage) error {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return badRequest("request body is required")
	}
	return nil
}
