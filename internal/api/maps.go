package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/banshee-data/localizer/internal/httputil"
	"github.com/banshee-data/localizer/internal/security"
	"github.com/banshee-data/localizer/internal/worldmap"
)

// Uploaded map files are small text tables; anything bigger than this
// is a mistake, not a map.
const maxMapUploadBytes = 4 << 20

func (s *Server) handleMaps(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleGetMaps(w, r)
	case http.MethodPost:
		s.handleUploadMap(w, r)
	case http.MethodDelete:
		s.handleDeleteMap(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleGetMaps lists stored maps, or returns one map's landmarks when
// ?name= is given.
func (s *Server) handleGetMaps(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		if s.maps == nil {
			httputil.InternalServerError(w, "no map store configured")
			return
		}
		m, err := s.maps.LoadMap(name)
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, m)
		return
	}

	if s.listMaps == nil {
		httputil.InternalServerError(w, "no map store configured")
		return
	}
	infos, err := s.listMaps()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if infos == nil {
		infos = []MapSummary{}
	}
	httputil.WriteJSONOK(w, infos)
}

// handleUploadMap stores a landmark map posted as a plain-text body in
// the "x y id" interchange format. ?name= is required. When a maps
// directory is configured, a sanitized file copy lands there too.
func (s *Server) handleUploadMap(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httputil.BadRequest(w, "name parameter is required")
		return
	}
	if s.maps == nil {
		httputil.InternalServerError(w, "no map store configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMapUploadBytes+1))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to read map data: %v", err))
		return
	}
	if len(body) > maxMapUploadBytes {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("map upload exceeds %d bytes", maxMapUploadBytes))
		return
	}

	m, err := worldmap.ParseMap(bytes.NewReader(body))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid map data: %v", err))
		return
	}

	if err := s.maps.SaveMap(name, m); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	if s.mapsDir != "" {
		if err := s.writeMapFile(name, body); err != nil {
			// The database copy is authoritative; a failed file copy is
			// worth a warning, not a failed upload.
			s.streams.Opsf("map %q: failed to write file copy: %v", name, err)
		}
	}

	s.streams.Diagf("map %q uploaded: %d landmarks", name, m.Len())
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"name":           name,
		"landmark_count": m.Len(),
	})
}

// writeMapFile drops a sanitized copy of the uploaded map under the
// maps directory.
func (s *Server) writeMapFile(name string, data []byte) error {
	fname, err := security.SanitizeFilename(name)
	if err != nil {
		return fmt.Errorf("unusable map name: %w", err)
	}
	path := filepath.Join(s.mapsDir, fname+".txt")
	if err := security.ValidatePathWithinDirectory(path, s.mapsDir); err != nil {
		return err
	}
	if err := s.fs.MkdirAll(s.mapsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create maps directory: %w", err)
	}
	if err := s.fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write map file: %w", err)
	}
	return nil
}

func (s *Server) handleDeleteMap(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		httputil.BadRequest(w, "name parameter is required")
		return
	}
	if s.maps == nil {
		httputil.InternalServerError(w, "no map store configured")
		return
	}
	if err := s.maps.DeleteMap(name); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"deleted": name})
}
