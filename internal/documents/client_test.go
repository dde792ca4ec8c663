package documents

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "intake/pkg/domain-errors"
)

func TestHTTPUploader(t *testing.T) {
	t.Run("posts multipart form and decodes the reference", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/documents/upload", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "white_paper", r.FormValue("documentType"))
			assert.Equal(t, "caller-9", r.FormValue("callerId"))
			f, hdr, err := r.FormFile("file")
			require.NoError(t, err)
			defer f.Close()
			body, _ := io.ReadAll(f)
			assert.Equal(t, "wp.pdf", hdr.Filename)
			assert.Equal(t, "token paper", string(body))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"url":"https://blobs/wp.pdf","blobName":"wp.pdf"}`))
		}))
		defer srv.Close()

		u := NewHTTPUploader(srv.URL+"/", time.Second)
		res, err := u.Upload(context.Background(), UploadRequest{
			CallerID:     "caller-9",
			DocumentType: "white_paper",
			Filename:     "wp.pdf",
			Content:      strings.NewReader("token paper"),
		})
		require.NoError(t, err)
		assert.Equal(t, "https://blobs/wp.pdf", res.URL)
		assert.Equal(t, "wp.pdf", res.BlobName)
	})

	t.Run("non-2xx becomes an upload error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		}))
		defer srv.Close()

		_, err := NewHTTPUploader(srv.URL, time.Second).Upload(context.Background(), UploadRequest{Filename: "big.pdf"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpload))
		assert.Contains(t, err.Error(), "413")
	})
}
