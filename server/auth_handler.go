package server

import (
	"net/http"
	"net/url"

	"github.com/mailauth/broker/broker"
)

// AuthHandler accepts authentication requests from relying parties. The
// broker service does all the decision making; this handler only moves
// parameters in and the response (or an error) out.
func (s *Server) AuthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := requestParams(r)
		if err != nil {
			s.renderErrorPage(w, http.StatusBadRequest, "Could not parse the request.")
			return
		}

		reqCtx := &broker.RequestContext{
			Method: r.Method,
			Params: params,
		}

		response, err := s.auth.Auth(r.Context(), reqCtx)
		if err != nil {
			s.respondError(w, reqCtx.ReturnParams(), err)
			return
		}
		s.writeResponse(w, r, response)
	}
}

// requestParams extracts the request parameters: the query string for GET,
// the form body for POST.
func requestParams(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodGet {
		return r.URL.Query(), nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return r.PostForm, nil
}

func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, response *broker.Response) {
	if response.RedirectURL != "" {
		http.Redirect(w, r, response.RedirectURL, http.StatusSeeOther)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(response.HTML))
}
