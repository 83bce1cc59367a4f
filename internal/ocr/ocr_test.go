package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/hyperifyio/poemscout/internal/cache"
	"github.com/hyperifyio/poemscout/internal/fetch"
)

type fakeEngine struct {
	text  string
	err   error
	panic bool
	calls int32
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Recognize(_ context.Context, img Image) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.panic {
		panic("engine exploded")
	}
	if len(img.Data) == 0 {
		return "", errors.New("no data")
	}
	return f.text, f.err
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	m := image.NewGray(image.Rect(0, 0, 4, 3))
	m.Set(1, 1, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, m); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func imageServer(t *testing.T, body []byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		switch r.URL.Path {
		case "/poem.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(body)
		case "/mislabeled.png":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write(body)
		case "/broken.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("definitely not a png"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newReader(eng Engine) *Reader {
	return &Reader{
		Fetcher:  &fetch.Client{UserAgent: "poemscout-test"},
		Engine:   eng,
		Language: "ur",
	}
}

func TestReadURL_TrimsRecognizedText(t *testing.T) {
	t.Parallel()
	srv, _ := imageServer(t, pngBytes(t))
	eng := &fakeEngine{text: "\n  دل ہی تو ہے نہ سنگ و خشت  \n"}
	res := newReader(eng).ReadURL(context.Background(), srv.URL+"/poem.png")
	if res.Err != nil {
		t.Fatalf("unexpected err: %v", res.Err)
	}
	if res.Text != "دل ہی تو ہے نہ سنگ و خشت" {
		t.Fatalf("text=%q", res.Text)
	}
}

func TestReadURL_FailureStages(t *testing.T) {
	t.Parallel()
	srv, _ := imageServer(t, pngBytes(t))
	cases := []struct {
		name string
		eng  Engine
		path string
		want error
	}{
		{"not found", &fakeEngine{text: "x"}, "/missing.png", ErrFetch},
		{"not an image", &fakeEngine{text: "x"}, "/broken.png", ErrDecode},
		{"engine error", &fakeEngine{err: errors.New("boom")}, "/poem.png", ErrRecognize},
		{"engine panic", &fakeEngine{panic: true}, "/poem.png", ErrRecognize},
		{"none engine", None{}, "/poem.png", ErrEngineUnavailable},
		{"nil engine", nil, "/poem.png", ErrRecognize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := newReader(tc.eng).ReadURL(context.Background(), srv.URL+tc.path)
			if !errors.Is(res.Err, tc.want) {
				t.Fatalf("err=%v want %v", res.Err, tc.want)
			}
			if res.Text != "" {
				t.Fatalf("text must be empty on failure, got %q", res.Text)
			}
		})
	}
}

func TestReadURL_DecoderJudgesMislabeledImage(t *testing.T) {
	t.Parallel()
	srv, _ := imageServer(t, pngBytes(t))
	res := newReader(&fakeEngine{text: "غزل"}).ReadURL(context.Background(), srv.URL+"/mislabeled.png")
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Text != "غزل" {
		t.Fatalf("text=%q", res.Text)
	}
}

func TestReadURL_NoFetcher(t *testing.T) {
	t.Parallel()
	r := &Reader{Engine: &fakeEngine{text: "x"}}
	if res := r.ReadURL(context.Background(), "http://example.invalid/a.png"); !errors.Is(res.Err, ErrFetch) {
		t.Fatalf("err=%v", res.Err)
	}
}

func TestReadURL_CacheHitSkipsEngine(t *testing.T) {
	t.Parallel()
	srv, hits := imageServer(t, pngBytes(t))
	eng := &fakeEngine{text: "ہزاروں خواہشیں ایسی کہ ہر خواہش پہ دم نکلے"}
	r := newReader(eng)
	r.Cache = &cache.OCRCache{Dir: t.TempDir()}

	first := r.ReadURL(context.Background(), srv.URL+"/poem.png")
	second := r.ReadURL(context.Background(), srv.URL+"/poem.png")
	if first.Err != nil || second.Err != nil {
		t.Fatalf("errors: %v, %v", first.Err, second.Err)
	}
	if first.Cached || !second.Cached {
		t.Fatalf("cached flags: first=%v second=%v", first.Cached, second.Cached)
	}
	if second.Text != first.Text {
		t.Fatalf("cached text mismatch: %q vs %q", second.Text, first.Text)
	}
	if n := atomic.LoadInt32(&eng.calls); n != 1 {
		t.Fatalf("engine called %d times, want 1", n)
	}
	// Bytes are still fetched; only recognition is cached.
	if n := atomic.LoadInt32(hits); n != 2 {
		t.Fatalf("server hits=%d want 2", n)
	}
}

func TestReadURL_FailuresNotCached(t *testing.T) {
	t.Parallel()
	srv, _ := imageServer(t, pngBytes(t))
	eng := &fakeEngine{err: errors.New("transient")}
	r := newReader(eng)
	r.Cache = &cache.OCRCache{Dir: t.TempDir()}
	_ = r.ReadURL(context.Background(), srv.URL+"/poem.png")
	eng.err = nil
	eng.text = "recovered"
	res := r.ReadURL(context.Background(), srv.URL+"/poem.png")
	if res.Err != nil || res.Text != "recovered" || res.Cached {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()
	img, err := Decode(pngBytes(t))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Format != "png" || img.MIMEType() != "image/png" {
		t.Fatalf("format=%q mime=%q", img.Format, img.MIMEType())
	}
	if img.Bounds.Dx() != 4 || img.Bounds.Dy() != 3 {
		t.Fatalf("bounds=%v", img.Bounds)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrDecode) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := Decode([]byte("<svg/>")); !errors.Is(err, ErrDecode) {
		t.Fatalf("svg: %v", err)
	}
}

func TestTesseractStubOrEngine(t *testing.T) {
	t.Parallel()
	// Without the tesseract tag the constructor must say why it cannot run.
	eng, err := NewTesseract(DefaultLanguage)
	if err != nil {
		if !errors.Is(err, ErrEngineUnavailable) {
			t.Fatalf("unexpected error type: %v", err)
		}
		return
	}
	defer eng.Close()
	if eng.Name() != "tesseract" {
		t.Fatalf("name=%s", eng.Name())
	}
}
