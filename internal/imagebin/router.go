package imagebin

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// Handler returns an http.Handler implementing the upload API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /static/{fileID}", s.handleGetFile)
	mux.HandleFunc("DELETE /removeupload/{fileID}", s.handleRemove)
	mux.HandleFunc("GET /listuploads", s.handleList)
	mux.HandleFunc("GET /listuploads/{name}", s.handleList)

	return LogRequest(SecureHeaders(CORS(s.cfg.AllowedOrigin)(gzhttp.GzipHandler(SlashFix(mux)))))
}
