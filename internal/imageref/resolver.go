// Package imageref normalisiert Bildreferenzen aus Anfragen (Dateipfad,
// URL oder eingebettete Base64-Daten-URI) in eine Form, die der
// Gesichtsanalyse-Dienst verarbeiten kann.
package imageref

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// TempPrefix ist das Namenspräfix aller vom Resolver angelegten Dateien
const TempPrefix = "img-"

var (
	// ErrMissingImage wird zurückgegeben, wenn keine Bildreferenz angegeben wurde
	ErrMissingImage = errors.New("image reference is empty")

	// ErrInvalidImage kennzeichnet fehlerhafte eingebettete Bilddaten
	ErrInvalidImage = errors.New("invalid image")
)

// Kind beschreibt die Art einer Bildreferenz
type Kind string

const (
	KindDataURI Kind = "data_uri"
	KindURL     Kind = "url"
	KindPath    Kind = "path"
)

// Image ist eine aufgelöste Bildreferenz
type Image struct {
	// Ref ist der Wert, den der Dienst erhält: unveränderte URL bzw. Pfad
	// oder der Pfad zur temporären Datei
	Ref string

	// Kind ist die Art der ursprünglichen Referenz
	Kind Kind

	// Temporary gibt an, ob Ref eine vom Resolver angelegte Datei ist
	Temporary bool
}

// Classify bestimmt die Art einer Bildreferenz anhand ihres Präfixes
func Classify(ref string) Kind {
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:image/"):
		return KindDataURI
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return KindURL
	default:
		return KindPath
	}
}

// Resolver legt für eingebettete Bilder temporäre Dateien an
type Resolver struct {
	tempDir  string
	maxBytes int64
}

// NewResolver erstellt einen neuen Resolver.
// maxBytes begrenzt die Größe eines dekodierten Bildes.
func NewResolver(tempDir string, maxBytes int64) *Resolver {
	return &Resolver{
		tempDir:  tempDir,
		maxBytes: maxBytes,
	}
}

// TempDir gibt das Verzeichnis der temporären Dateien zurück
func (r *Resolver) TempDir() string {
	return r.tempDir
}

// NewScope öffnet einen Gültigkeitsbereich für eine Anfrage. Alle darin
// angelegten Dateien werden mit Release gelöscht.
func (r *Resolver) NewScope(requestID string) *Scope {
	requestID = strings.Map(func(c rune) rune {
		if c == '/' || c == '\\' || c == '*' {
			return '_'
		}
		return c
	}, requestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return &Scope{
		resolver:  r,
		requestID: requestID,
	}
}

// Scope gehört genau einer Anfrage und wird nicht nebenläufig benutzt
type Scope struct {
	resolver  *Resolver
	requestID string
	files     []string
}

// Resolve löst eine einzelne Referenz auf
func (s *Scope) Resolve(ref string) (Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return Image{}, ErrMissingImage
	}

	kind := Classify(ref)
	if kind != KindDataURI {
		return Image{Ref: ref, Kind: kind}, nil
	}

	mimeType, data, err := decodeDataURI(ref, s.resolver.maxBytes)
	if err != nil {
		return Image{}, err
	}

	path, err := s.writeTemp(data, extensionFor(mimeType))
	if err != nil {
		return Image{}, err
	}

	return Image{Ref: path, Kind: kind, Temporary: true}, nil
}

// Files gibt die bisher angelegten temporären Dateien zurück
func (s *Scope) Files() []string {
	return append([]string(nil), s.files...)
}

// Release löscht alle temporären Dateien des Scopes. Fehler beim Löschen
// werden nur protokolliert.
func (s *Scope) Release() {
	for _, path := range s.files {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithFields(log.Fields{
				"component":  "imageref",
				"request_id": s.requestID,
			}).Debugf("Failed to remove temporary image %s: %v", path, err)
		}
	}
	s.files = nil
}

func (s *Scope) writeTemp(data []byte, ext string) (string, error) {
	pattern := fmt.Sprintf("%s%s-*%s", TempPrefix, s.requestID, ext)
	f, err := os.CreateTemp(s.resolver.tempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temporary image: %w", err)
	}
	// Sofort registrieren, damit auch eine halb geschriebene Datei entfernt wird
	s.files = append(s.files, f.Name())

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write temporary image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close temporary image: %w", err)
	}
	return f.Name(), nil
}

// decodeDataURI zerlegt data:image/<subtype>;base64,<payload>
func decodeDataURI(ref string, maxBytes int64) (string, []byte, error) {
	header, payload, found := strings.Cut(ref, ",")
	if !found {
		return "", nil, fmt.Errorf("%w: data URI has no payload", ErrInvalidImage)
	}

	meta := header[len("data:"):]
	params := strings.Split(meta, ";")
	mimeType := strings.ToLower(params[0])
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(p, "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: data URI is not base64 encoded", ErrInvalidImage)
	}

	// Zeilenumbrüche kommen bei kopierten Daten häufig vor
	payload = strings.NewReplacer("\n", "", "\r", "", " ", "").Replace(payload)

	if maxBytes > 0 && int64(base64.StdEncoding.DecodedLen(len(payload))) > maxBytes+2 {
		return "", nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidImage, maxBytes)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Manche Clients lassen das Padding weg
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: image payload is empty", ErrInvalidImage)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalidImage, maxBytes)
	}

	return mimeType, data, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/gif":
		return ".gif"
	default:
		return ".img"
	}
}
