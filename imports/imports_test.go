package imports

import (
	"context"
	"fmt"
	"testing"

	"github.com/kpax-audio/gbscore/score"
)

func TestResolveMergesLocalImportLastWinsAgainstSource(t *testing.T) {
	files := map[string]string{
		"/base/a.ins": "inst lead type=pulse1 duty=0.25\n",
	}
	sc := &score.Score{
		Imports:         []string{"local:a.ins"},
		InstrumentNames: []string{"lead"},
		Instruments: map[string]*score.Instrument{
			"lead": {Name: "lead", Type: "pulse2"},
		},
	}
	opts := Options{
		BaseDir:   "/base",
		ReadLocal: fakeReader(files),
	}
	res, err := Resolve(context.Background(), sc, opts)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Instruments["lead"].Type != "pulse2" {
		t.Errorf("source declaration should win over import, got type %q", res.Instruments["lead"].Type)
	}
}

func TestResolveRejectsPathTraversal(t *testing.T) {
	sc := &score.Score{Imports: []string{"local:../outside.ins"}}
	opts := Options{BaseDir: "/base/songs", ReadLocal: fakeReader(nil)}
	_, err := Resolve(context.Background(), sc, opts)
	if err == nil {
		t.Fatal("expected an error for a path escaping the base directory")
	}
}

func TestResolveRejectsAbsoluteLocalPathByDefault(t *testing.T) {
	sc := &score.Score{Imports: []string{"local:/etc/passwd"}}
	opts := Options{BaseDir: "/base", ReadLocal: fakeReader(nil)}
	_, err := Resolve(context.Background(), sc, opts)
	if err == nil {
		t.Fatal("expected an error for an absolute local path")
	}
}

func TestResolveDetectsImportCycle(t *testing.T) {
	files := map[string]string{
		"/base/a.ins": "import \"local:b.ins\"\ninst a type=pulse1\n",
		"/base/b.ins": "import \"local:a.ins\"\ninst b type=pulse1\n",
	}
	sc := &score.Score{Imports: []string{"local:a.ins"}}
	opts := Options{BaseDir: "/base", ReadLocal: fakeReader(files)}
	_, err := Resolve(context.Background(), sc, opts)
	if err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestResolveRejectsNonInstrumentImport(t *testing.T) {
	files := map[string]string{
		"/base/a.ins": "inst lead type=pulse1\nchannel 1 => inst lead pat Q\n",
	}
	sc := &score.Score{Imports: []string{"local:a.ins"}}
	opts := Options{BaseDir: "/base", ReadLocal: fakeReader(files)}
	_, err := Resolve(context.Background(), sc, opts)
	if err == nil {
		t.Fatal("expected an error for an import with non-instrument content")
	}
}

func TestRemoteURLExpandsGithubSpec(t *testing.T) {
	url, err := remoteURL("github:alice/songs/main/lead.ins", Options{})
	if err != nil {
		t.Fatalf("remoteURL: %v", err)
	}
	want := "https://raw.githubusercontent.com/alice/songs/main/lead.ins"
	if url != want {
		t.Errorf("remoteURL = %q, want %q", url, want)
	}
}

func TestRemoteURLRejectsPlainHTTPInHTTPSOnlyMode(t *testing.T) {
	_, err := remoteURL("http://example.com/lead.ins", Options{HTTPSOnly: true})
	if err == nil {
		t.Fatal("expected https-only mode to reject a plain http spec")
	}
}

func fakeReader(files map[string]string) LocalReader {
	return func(path string) ([]byte, error) {
		if content, ok := files[path]; ok {
			return []byte(content), nil
		}
		return nil, fmt.Errorf("no such file: %s", path)
	}
}
