package query

import (
	"context"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/qca-lab/qca-sim/sim"
)

// Response is a transport-neutral reply: the same value backs the HTTP
// handler and custom-scheme protocol hosts.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	Err         error
}

// Serve answers rawQuery. Success is 200 with the raw float body; every
// failure is 400 with a plain-text message.
func Serve(ctx context.Context, loader Loader, rawQuery string) Response {
	req, err := ParseRequest(rawQuery)
	if err == nil {
		var body []byte
		body, err = Resolve(ctx, loader, req)
		if err == nil {
			return Response{Status: http.StatusOK, ContentType: "application/octet-stream", Body: body}
		}
	}
	return Response{
		Status:      http.StatusBadRequest,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(err.Error()),
		Err:         err,
	}
}

func setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET")
}

// Handler serves GET queries and CORS preflight requests.
func Handler(loader Loader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !Preflight(w, r) {
			return
		}
		resp := Serve(r.Context(), loader, r.URL.RawQuery)
		if resp.Err != nil {
			logrus.WithFields(logrus.Fields{"kind": sim.KindOf(resp.Err), "query": r.URL.RawQuery}).
				Warnf("[query] %v", resp.Err)
		}
		Write(w, resp)
	})
}

// Preflight sets the CORS headers and answers anything but GET. It reports
// whether the caller should go on to serve the query.
func Preflight(w http.ResponseWriter, r *http.Request) bool {
	setCORS(w.Header())
	switch r.Method {
	case http.MethodGet:
		return true
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte("method not allowed"))
	}
	return false
}

// Write sends resp with the CORS headers.
func Write(w http.ResponseWriter, resp Response) {
	setCORS(w.Header())
	w.Header().Set("Content-Type", resp.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
