package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/gosom/invoice-reminder/models"
)

func renderJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func renderError(w http.ResponseWriter, code int, message string) {
	renderJSON(w, code, models.APIError{Error: message})
}

// errorCase maps a sentinel error to the response a route gives for it.
type errorCase struct {
	target  error
	code    int
	message string
}

// renderServiceError writes the first matching case, or a 500 carrying the
// underlying error message.
func renderServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, cases ...errorCase) {
	for _, c := range cases {
		if errors.Is(err, c.target) {
			renderError(w, c.code, c.message)
			return
		}
	}

	logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))

	renderJSON(w, http.StatusInternalServerError, models.APIError{
		Error:   "Internal server error",
		Message: err.Error(),
	})
}

var resultPage = template.Must(template.New("result").Parse(`<html>
  <body>
    <h1>{{.Heading}}</h1>
    <p>{{.Message}}</p>
    <script>
      setTimeout(() => {
        window.close();
      }, {{.CloseAfterMS}});
    </script>
  </body>
</html>
`))

type pageData struct {
	Heading      string
	Message      string
	CloseAfterMS int
}

func renderPage(w http.ResponseWriter, code int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = resultPage.Execute(w, data)
}

func renderFailurePage(w http.ResponseWriter, code int, message string) {
	renderPage(w, code, pageData{
		Heading:      "CRM Connection Failed",
		Message:      message,
		CloseAfterMS: 3000,
	})
}
