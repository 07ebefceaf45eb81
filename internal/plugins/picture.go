package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"spe/internal/domain"
	"spe/internal/panel"
)

// ─────────────────────────────────────────────────────────────
// Picture panel: an image from a link or from a local file
// ─────────────────────────────────────────────────────────────

const TypePicture = "Picture"

// BlobID names a picture payload on the remote. Payloads belong to a
// document, so a copy saved under another id never overwrites the original.
func BlobID(documentID, panelID string) string {
	if documentID == "" {
		return panelID
	}
	return documentID + "." + panelID
}

// BlobKey is the blob cache key of a picture panel's payload.
func BlobKey(documentID, panelID string) string {
	return "image/" + BlobID(documentID, panelID)
}

// Picture holds an image payload or a link to fetch one from.
type Picture struct {
	*panel.Base

	mu   sync.Mutex
	link string
	blob *domain.Blob
}

type pictureData struct {
	Key         *string `json:"key"`
	Blob        string  `json:"blob,omitempty"` // remote id, the panel id when absent
	Link        string  `json:"link,omitempty"`
	ContentType string  `json:"contentType,omitempty"`
}

func (d pictureData) remoteID(panelID string) string {
	if d.Blob != "" {
		return d.Blob
	}
	return panelID
}

// NewPicture creates an empty picture panel.
func NewPicture(id string) *Picture {
	return &Picture{Base: panel.NewBase(id, TypePicture)}
}

// SetImage stores a payload. An empty content type is sniffed from the data.
func (p *Picture) SetImage(data []byte, contentType string) {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	p.mu.Lock()
	p.blob = &domain.Blob{Data: append([]byte(nil), data...), ContentType: contentType}
	p.mu.Unlock()
	p.Notify()
}

// SetLink points the picture at a web path. Any held payload is dropped and
// the link is fetched on the next serialization.
func (p *Picture) SetLink(url string) {
	p.mu.Lock()
	if p.link == url && p.blob != nil {
		p.mu.Unlock()
		return
	}
	p.link = url
	p.blob = nil
	p.mu.Unlock()
	p.Notify()
}

// Link returns the web path the picture was taken from, if any.
func (p *Picture) Link() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.link
}

// Image returns the held payload.
func (p *Picture) Image() (domain.Blob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.blob == nil {
		return domain.Blob{}, false
	}
	return *p.blob, true
}

func (p *Picture) Serialize(ctx context.Context, env panel.Env) (domain.PanelRecord, error) {
	p.mu.Lock()
	blob, link := p.blob, p.link
	p.mu.Unlock()

	if blob == nil && link != "" {
		if env.Fetch == nil {
			return domain.PanelRecord{}, fmt.Errorf("%w: no fetcher for %s", domain.ErrUnresolvable, link)
		}
		fetched, err := env.Fetch(ctx, link)
		if err != nil {
			return domain.PanelRecord{}, fmt.Errorf("%w: could not fetch image %s from %s: %v", domain.ErrUnresolvable, p.ID(), link, err)
		}
		blob = &fetched
		p.mu.Lock()
		if p.link == link && p.blob == nil {
			p.blob = blob
		}
		p.mu.Unlock()
	}

	key := ""
	payload := pictureData{Key: &key, Link: link}
	if blob != nil {
		if env.Blobs == nil {
			return domain.PanelRecord{}, domain.Preconditionf("picture %s: no blob cache", p.ID())
		}
		key = BlobKey(env.Document, p.ID())
		if err := env.Blobs.PutBlob(ctx, key, *blob); err != nil {
			return domain.PanelRecord{}, fmt.Errorf("cache image %s: %w", p.ID(), err)
		}
		remoteID := BlobID(env.Document, p.ID())
		if env.Remote != nil {
			if err := env.Remote.UploadBlob(ctx, remoteID, *blob); err != nil {
				return domain.PanelRecord{}, fmt.Errorf("upload image %s: %w", p.ID(), err)
			}
		}
		if remoteID != p.ID() {
			payload.Blob = remoteID
		}
		payload.ContentType = blob.ContentType
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return domain.PanelRecord{}, err
	}
	return p.Record(string(data)), nil
}

// Delete drops the decoded payload. Cached blobs stay with the stored document.
func (p *Picture) Delete(_ context.Context) error {
	p.mu.Lock()
	p.blob = nil
	p.mu.Unlock()
	p.Notify()
	return nil
}

func deserializePicture(ctx context.Context, rec domain.PanelRecord, env panel.Env) (panel.Panel, error) {
	var payload pictureData
	if err := json.Unmarshal([]byte(rec.Data), &payload); err != nil {
		return nil, domain.Corruptedf("picture panel %s: %v", rec.ID, err)
	}
	if payload.Key == nil {
		return nil, domain.Corruptedf("picture panel %s: missing key", rec.ID)
	}
	p := NewPicture(rec.ID)
	p.link = payload.Link
	if *payload.Key == "" {
		return p, nil
	}
	blob, err := ResolveBlob(ctx, env, *payload.Key, payload.remoteID(rec.ID))
	if err != nil {
		return nil, err
	}
	p.blob = &blob
	return p, nil
}

// pictureBlobs reports the cached payload a picture record points at.
func pictureBlobs(rec domain.PanelRecord) ([]panel.BlobRef, error) {
	var payload pictureData
	if err := json.Unmarshal([]byte(rec.Data), &payload); err != nil {
		return nil, domain.Corruptedf("picture panel %s: %v", rec.ID, err)
	}
	if payload.Key == nil || *payload.Key == "" {
		return nil, nil
	}
	return []panel.BlobRef{{Key: *payload.Key, RemoteID: payload.remoteID(rec.ID)}}, nil
}

// ResolveBlob looks key up in the local cache and falls back to downloading
// remoteID, caching the result before returning it.
func ResolveBlob(ctx context.Context, env panel.Env, key, remoteID string) (domain.Blob, error) {
	var localErr error
	if env.Blobs != nil {
		blob, err := env.Blobs.GetBlob(ctx, key)
		if err == nil {
			return blob, nil
		}
		localErr = err
	} else {
		localErr = errors.New("no blob cache")
	}

	if env.Remote == nil {
		return domain.Blob{}, fmt.Errorf("%w: %s not cached (%v) and no remote session", domain.ErrUnresolvable, key, localErr)
	}
	blob, err := env.Remote.DownloadBlob(ctx, remoteID)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("%w: %s not cached (%v) and download failed: %v", domain.ErrUnresolvable, key, localErr, err)
	}
	if env.Blobs != nil {
		if err := env.Blobs.PutBlob(ctx, key, blob); err != nil {
			return domain.Blob{}, fmt.Errorf("cache downloaded %s: %w", key, err)
		}
	}
	return blob, nil
}
