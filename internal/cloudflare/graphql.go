package cloudflare

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const graphqlEndpoint = "graphql"

// graphQLRequest is the POST body for the analytics GraphQL endpoint.
type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphQLEnvelope is the standard GraphQL response wrapper.
type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// GraphQL executes a query against the analytics endpoint and decodes the
// response data into out. Any reported GraphQL error fails the call, even
// when partial data is present.
func (c *Client) GraphQL(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}

	resp, err := c.roundTrip(ctx, http.MethodPost, c.graphqlURL, payload)
	if err != nil {
		return err
	}

	var env graphQLEnvelope
	if err := json.Unmarshal(resp.body, &env); err != nil {
		return c.decodeFailure(graphqlEndpoint, resp, err)
	}

	if len(env.Errors) > 0 {
		message := joinGraphQLErrors(env.Errors)
		if isAuthFailureMessage(message) {
			return NewTokenExpiredError(message)
		}
		return NewAPIError(message)
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return NewInvalidResponseError(graphqlEndpoint)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return c.decodeFailure(graphqlEndpoint, resp, err)
	}
	return nil
}

func joinGraphQLErrors(errs []graphQLError) string {
	var message string
	for _, e := range errs {
		if e.Message == "" {
			continue
		}
		if message != "" {
			message += "; "
		}
		message += e.Message
	}
	return message
}
