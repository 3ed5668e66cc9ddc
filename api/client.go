// Package api - HTTP-Client fuer den codetrans-Server.
// Enthaelt: Client, ClientFromEnvironment, NewClient und je eine Methode
// pro Endpunkt. Die Typen liegen in types.go.
//
// Die Kommandozeile nutzt dieses Paket selbst um mit einem laufenden
// Server zu sprechen.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/7blacky7/codetrans/envconfig"
	"github.com/7blacky7/codetrans/version"
)

// Client kapselt Basis-URL und HTTP-Client
// Neue Clients ueber [ClientFromEnvironment] erstellen.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	err := json.Unmarshal(body, &apiError)
	if err != nil {
		// Body als Meldung wenn er kein JSON ist
		apiError.ErrorMessage = string(body)
	}

	return apiError
}

// ClientFromEnvironment erstellt einen Client fuer CODETRANS_HOST
//
//	<scheme>://<host>:<port>
//
// Ohne Variable wird 127.0.0.1:11435 verwendet.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	var reqBody io.Reader

	switch reqData := reqData.(type) {
	case io.Reader:
		reqBody = reqData
	case nil:
		// noop
	default:
		data, err := json.Marshal(reqData)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return err
	}

	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("codetrans/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return err
	}

	if err := checkError(respObj, respBody); err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}
	return nil
}

// Translate uebersetzt Quelltext
func (c *Client) Translate(ctx context.Context, req *TranslateRequest) (*TranslateResponse, error) {
	var resp TranslateResponse
	if err := c.do(ctx, http.MethodPost, "/api/translate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate prueft Code ohne Uebersetzung
func (c *Client) Validate(ctx context.Context, req *ValidateRequest) (*ValidateResponse, error) {
	var resp ValidateResponse
	if err := c.do(ctx, http.MethodPost, "/api/validate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Evaluate bewertet Referenz/Kandidat-Paare
func (c *Client) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	var resp EvaluateResponse
	if err := c.do(ctx, http.MethodPost, "/api/evaluate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Feedback speichert eine Korrektur fuer spaeteres Training
func (c *Client) Feedback(ctx context.Context, req *FeedbackRequest) (*FeedbackResponse, error) {
	var resp FeedbackResponse
	if err := c.do(ctx, http.MethodPost, "/api/feedback", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Languages listet Sprachen und unterstuetzte Paare
func (c *Client) Languages(ctx context.Context) (*LanguagesResponse, error) {
	var resp LanguagesResponse
	if err := c.do(ctx, http.MethodGet, "/api/languages", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Runs listet die Trainingshistorie
func (c *Client) Runs(ctx context.Context) (*RunsResponse, error) {
	var resp RunsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Run liefert einen Lauf mit seinen Epochen
func (c *Client) Run(ctx context.Context, id string) (*RunResponse, error) {
	var resp RunResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Model beschreibt den geladenen Checkpoint
func (c *Client) Model(ctx context.Context) (*ModelResponse, error) {
	var resp ModelResponse
	if err := c.do(ctx, http.MethodGet, "/api/model", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Reload laedt einen Checkpoint im laufenden Server neu
func (c *Client) Reload(ctx context.Context, req *ReloadRequest) (*ModelResponse, error) {
	var resp ModelResponse
	if err := c.do(ctx, http.MethodPost, "/api/reload", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Version gibt die Server-Version zurueck
func (c *Client) Version(ctx context.Context) (string, error) {
	var version VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}
	return version.Version, nil
}

// Heartbeat prueft ob der Server erreichbar ist
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodHead, "/", nil, nil); err != nil {
		return err
	}
	return nil
}
