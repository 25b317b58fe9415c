package fastpath

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/banshee-data/watchpost/internal/httputil"
	"gonum.org/v1/gonum/mat"
)

// HTTPModel calls a TensorFlow Serving REST endpoint:
//
//	POST {endpoint}/v1/models/{name}:predict  {"instances": [window]}
//
// and reads the first row of "predictions".
type HTTPModel struct {
	client httputil.HTTPClient
	url    string
}

type predictRequest struct {
	Instances [][][]float64 `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

// NewHTTPModel returns a model served at endpoint under name.
func NewHTTPModel(client httputil.HTTPClient, endpoint, name string) *HTTPModel {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	u := strings.TrimRight(endpoint, "/") + "/v1/models/" + url.PathEscape(name) + ":predict"
	return &HTTPModel{client: client, url: u}
}

// URL is the prediction URL.
func (m *HTTPModel) URL() string { return m.url }

func (m *HTTPModel) Predict(ctx context.Context, window *mat.Dense) ([]float64, error) {
	rows, cols := window.Dims()
	instance := make([][]float64, rows)
	for i := range instance {
		instance[i] = mat.Row(make([]float64, cols), i, window)
	}

	var resp predictResponse
	if err := httputil.DoJSON(ctx, m.client, http.MethodPost, m.url, predictRequest{Instances: [][][]float64{instance}}, &resp); err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("predict: %s", resp.Error)
	}
	if len(resp.Predictions) == 0 {
		return nil, errors.New("predict: empty predictions")
	}
	return resp.Predictions[0], nil
}
