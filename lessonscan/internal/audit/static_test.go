package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const lessonPage = `<!DOCTYPE html><html><head></head><body>
<main><h1>Lesson 1</h1>
<img src="a.png">
<img src="b.png" alt="">
<a href="/next"></a>
<a href="/ok">Next</a>
<a href="/home"><img src="h.png" alt="Home"></a>
<button></button>
<button aria-label="Close"></button>
<input type="text" id="name">
<label for="email">Email</label><input id="email" type="email">
<label>Age <input type="number"></label>
<input type="submit">
<input type="hidden" name="csrf">
<div aria-hidden="true"><img src="decor.png"></div>
</main></body></html>`

func TestStaticEngine_Rules(t *testing.T) {
	res, err := NewStaticEngine("https://lms.example/lesson/1", []byte(lessonPage)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.URL != "https://lms.example/lesson/1" {
		t.Errorf("url = %q", res.URL)
	}

	want := []string{"html-has-lang", "document-title", "image-alt", "link-name", "button-name", "input-label"}
	if len(res.Violations) != len(want) {
		var got []string
		for _, v := range res.Violations {
			got = append(got, v.ID)
		}
		t.Fatalf("violations = %v, want %v", got, want)
	}
	for i, id := range want {
		v := res.Violations[i]
		if v.ID != id {
			t.Errorf("violation %d = %q, want %q", i, v.ID, id)
		}
		if len(v.Nodes) != 1 {
			t.Errorf("%s: %d nodes, want 1", v.ID, len(v.Nodes))
		}
		if v.HelpURL != ruleHelpBase+id {
			t.Errorf("%s: helpUrl = %q", v.ID, v.HelpURL)
		}
	}

	img := res.Violations[2].Nodes[0]
	if got := img.Target[0]; got != "body > main:nth-of-type(1) > img:nth-of-type(1)" {
		t.Errorf("image target = %q", got)
	}
	if img.Location != `main under "Lesson 1"` {
		t.Errorf("image location = %q", img.Location)
	}
	if !strings.HasPrefix(img.HTML, `<img src="a.png"`) {
		t.Errorf("image html = %q", img.HTML)
	}

	if got := res.Violations[5].Nodes[0].Target[0]; got != "#name" {
		t.Errorf("input target = %q, want #name", got)
	}
	if got := res.Violations[0].Nodes[0].HTML; got != "<html>" {
		t.Errorf("html snapshot = %q", got)
	}
}

func TestStaticEngine_CleanDocument(t *testing.T) {
	doc := `<html lang="en"><head><title>Lesson</title></head><body>
<nav aria-label="Lessons"><a href="/1">One</a></nav>
<img src="x.png" role="presentation">
<label>Name <select><option>a</option></select></label>
<textarea aria-label="Notes"></textarea>
</body></html>`
	res, err := NewStaticEngine("", []byte(doc)).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Title != "Lesson" {
		t.Errorf("title = %q", res.Title)
	}
	if len(res.Violations) != 0 {
		t.Errorf("violations = %+v, want none", res.Violations)
	}
}

func TestStaticEngine_EmptyDocument(t *testing.T) {
	_, err := NewStaticEngine("", []byte("  ")).Run(context.Background())
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
}

func TestStaticFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html lang="fr"><head><title>T</title></head><body><button></button></body></html>`))
	}))
	defer srv.Close()

	res, err := NewStaticFetcher(srv.URL+"/page", srv.Client(), 0).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].ID != "button-name" {
		t.Errorf("violations = %+v", res.Violations)
	}

	_, err = NewStaticFetcher(srv.URL+"/missing", srv.Client(), 0).Run(context.Background())
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Errorf("404: err = %v, want ErrEngineUnavailable", err)
	}

	_, err = NewStaticFetcher(srv.URL+"/page", srv.Client(), 10).Run(context.Background())
	if err == nil {
		t.Error("oversized document: expected error")
	}
}
