package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/tidwall/gjson"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

const DefaultURL = "https://api.ocr.space/parse/image"

// maxResponse caps how much of an OCR response is read.
const maxResponse = 1 << 20

// Client is an OCR.Space text recognizer.
type Client struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{url: url, apiKey: apiKey, http: &http.Client{Timeout: timeout}}
}

// RecognizeText returns the text of the first parsed result, possibly empty.
func (c *Client) RecognizeText(ctx context.Context, photo domain.Photo) (string, error) {
	body, contentType, err := c.form(photo)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return "", fmt.Errorf("ocr read failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ocr service returned %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("ocr service returned invalid JSON")
	}

	res := gjson.ParseBytes(raw)
	if res.Get("IsErroredOnProcessing").Bool() {
		em := res.Get("ErrorMessage")
		msg := em.String()
		if em.IsArray() {
			msg = em.Get("0").String()
		}
		return "", fmt.Errorf("ocr processing failed: %s", msg)
	}
	return res.Get("ParsedResults.0.ParsedText").String(), nil
}

func (c *Client) form(photo domain.Photo) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("language", "eng")
	_ = w.WriteField("isTable", "false")

	ext := photo.Ext
	if ext == "" {
		ext = "jpg"
	}
	contentType := photo.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="photo.%s"`, ext))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(photo.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
