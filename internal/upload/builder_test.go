package upload

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/withObsrvr/artwork-uploader/internal/archive"
	"github.com/withObsrvr/artwork-uploader/internal/layout"
)

func scenarioArtworks(dir string) []Artwork {
	return []Artwork{
		{FilePath: filepath.Join(dir, "one.jpg")},
		{FilePath: filepath.Join(dir, "two.jpg"), VectorPath: filepath.Join(dir, "two.eps")},
		{FilePath: filepath.Join(dir, "three.jpg"), VectorPath: filepath.Join(dir, "three.eps")},
	}
}

func TestResolvePaths(t *testing.T) {
	plain, archived := ResolvePaths(scenarioArtworks("/art"), zipArchiver{})

	wantPlain := []string{
		"/art/one.jpg",
		"/art/two.jpg", "/art/two.eps",
		"/art/three.jpg", "/art/three.eps",
	}
	wantArchived := []string{"/art/one.jpg", "/art/two.zip", "/art/three.zip"}

	if !reflect.DeepEqual(plain, wantPlain) {
		t.Errorf("plain = %v, want %v", plain, wantPlain)
	}
	if !reflect.DeepEqual(archived, wantArchived) {
		t.Errorf("archived = %v, want %v", archived, wantArchived)
	}
}

func TestSelectPaths(t *testing.T) {
	plain := []string{"a.jpg", "a.eps"}
	archived := []string{"a.zip"}

	if got := SelectPaths(Destination{ZipBeforeUpload: true}, plain, archived); !reflect.DeepEqual(got, archived) {
		t.Errorf("zip destination got %v", got)
	}
	if got := SelectPaths(Destination{}, plain, archived); !reflect.DeepEqual(got, plain) {
		t.Errorf("plain destination got %v", got)
	}
}

func TestNewUploadContext(t *testing.T) {
	dest := Destination{
		Title:              "Dreamstime",
		Host:               "ftp://upload.dreamstime.com/",
		Username:           "me",
		DisablePassiveMode: true,
	}
	settings := Settings{
		UseProxy:       true,
		Proxy:          &ProxySettings{Address: "127.0.0.1", Port: "1080"},
		TimeoutSeconds: 30,
	}

	uc := NewUploadContext(dest, "pw", settings, layout.DefaultTable())

	if uc.UsePassiveMode {
		t.Error("passive mode should be off when disabled on the destination")
	}
	if !uc.UseEPSV {
		t.Error("EPSV should be on unless disabled")
	}
	if uc.RetriesCount != RetriesCount {
		t.Errorf("RetriesCount = %d, want %d", uc.RetriesCount, RetriesCount)
	}
	if uc.VectorsDir != "additional" || uc.ImagesDir != "" {
		t.Errorf("dirs = %q/%q, want images empty and vectors additional", uc.ImagesDir, uc.VectorsDir)
	}
	if uc.Password != "pw" || !uc.UseProxy || uc.Proxy.Port != "1080" {
		t.Errorf("unexpected context: %+v", uc)
	}
	if uc.Timeout().Seconds() != 30 {
		t.Errorf("Timeout = %v, want 30s", uc.Timeout())
	}
	if err := uc.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildBatchesScenario(t *testing.T) {
	layouts, err := layout.NewTable([]layout.Rule{{Match: "hosta", VectorsDir: "vectors"}})
	if err != nil {
		t.Fatal(err)
	}

	destinations := []Destination{
		{Title: "A", Host: "hostA", ZipBeforeUpload: true},
		{Title: "B", Host: "hostB"},
	}

	batches := BuildBatches(scenarioArtworks("/art"), destinations, plainDecoder{}, Settings{},
		WithArchiver(zipArchiver{}), WithLayouts(layouts))

	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}

	a, b := batches[0], batches[1]
	if a.Host() != "hostA" || b.Host() != "hostB" {
		t.Fatalf("unexpected batch hosts: %s, %s", a.Host(), b.Host())
	}

	wantA := []string{"/art/one.jpg", "/art/two.zip", "/art/three.zip"}
	if !reflect.DeepEqual(a.Files(), wantA) {
		t.Errorf("hostA files = %v, want %v", a.Files(), wantA)
	}
	if a.Context.VectorsDir != "vectors" {
		t.Errorf("hostA vectors dir = %q, want vectors", a.Context.VectorsDir)
	}

	if b.Len() != 5 {
		t.Errorf("hostB files = %v, want 5 paths", b.Files())
	}
	if b.Context.VectorsDir != "" {
		t.Errorf("hostB should have no override, got %q", b.Context.VectorsDir)
	}
}

func TestBuildBatchesSkipsBadDestinations(t *testing.T) {
	destinations := []Destination{
		{Title: "bad creds", Host: "ftp://one/", EncodedPassword: "broken"},
		{Title: "no host", Host: ""},
		{Title: "good", Host: "ftp://two/", EncodedPassword: "ok"},
		{Title: "same host", Host: "FTP://two/", EncodedPassword: "ok"},
	}

	// The last destination shares host and login with "good" and is merged
	// into its batch, adding nothing new.

	batches := BuildBatches(scenarioArtworks("/art"), destinations, failingDecoder{reject: "broken"}, Settings{},
		WithArchiver(zipArchiver{}))

	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if batches[0].Host() != "ftp://two/" || batches[0].Context.Password != "ok" {
		t.Errorf("unexpected batch: %+v", batches[0].Context)
	}
}

func TestBuildBatchesMergesSameHost(t *testing.T) {
	artworks := []Artwork{
		{FilePath: "/a/one.jpg", VectorPath: "/a/one.eps"},
		{FilePath: "/a/two.jpg"},
	}
	destinations := []Destination{
		{Title: "plain", Host: "ftp://stock.example.com/", Username: "u", EncodedPassword: "p"},
		{Title: "zipped", Host: "FTP://stock.example.com/", Username: "u", EncodedPassword: "p", ZipBeforeUpload: true},
	}

	batches := BuildBatches(artworks, destinations, plainDecoder{}, Settings{}, WithArchiver(zipArchiver{}))
	if len(batches) != 1 {
		t.Fatalf("expected 1 merged batch, got %d", len(batches))
	}

	want := []string{"/a/one.jpg", "/a/one.eps", "/a/two.jpg", "/a/one.zip"}
	if got := batches[0].Files(); !reflect.DeepEqual(got, want) {
		t.Errorf("merged files = %v, want %v", got, want)
	}
	if batches[0].Context.Title != "plain" {
		t.Errorf("merged batch should keep the first context, got %q", batches[0].Context.Title)
	}
}

func TestBuildBatchesSameHostDifferentLogin(t *testing.T) {
	artworks := []Artwork{{FilePath: "/a/one.jpg", VectorPath: "/a/one.eps"}}
	destinations := []Destination{
		{Title: "first", Host: "ftp://stock.example.com/", Username: "alice", EncodedPassword: "p"},
		{Title: "second", Host: "ftp://stock.example.com/", Username: "bob", EncodedPassword: "p", ZipBeforeUpload: true},
	}

	batches := BuildBatches(artworks, destinations, plainDecoder{}, Settings{}, WithArchiver(zipArchiver{}))
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if got := batches[1].Files(); !reflect.DeepEqual(got, []string{"/a/one.zip"}) {
		t.Errorf("second login files = %v", got)
	}
	if batches[1].Context.Username != "bob" {
		t.Errorf("second batch user = %q", batches[1].Context.Username)
	}
}

func TestBuildBatchesEmptyInputs(t *testing.T) {
	dests := []Destination{{Host: "ftp://h/"}}

	if got := BuildBatches(nil, dests, plainDecoder{}, Settings{}); len(got) != 0 {
		t.Errorf("no artworks should build no batches, got %d", len(got))
	}
	if got := BuildBatches(scenarioArtworks("/art"), nil, plainDecoder{}, Settings{}); len(got) != 0 {
		t.Errorf("no destinations should build no batches, got %d", len(got))
	}
}

func TestNewBatchValidation(t *testing.T) {
	if _, err := NewBatch(testContext("ftp://h/"), nil); err == nil {
		t.Error("expected error for empty batch")
	}

	uc := testContext("ftp://h/")
	uc.RetriesCount = -1
	if _, err := NewBatch(uc, []string{"a.jpg"}); err == nil {
		t.Error("expected error for negative retries")
	}

	files := []string{"a.jpg"}
	b, err := NewBatch(testContext("ftp://h/"), files)
	if err != nil {
		t.Fatal(err)
	}
	files[0] = "changed.jpg"
	if b.Files()[0] != "a.jpg" {
		t.Error("batch should not alias the caller's slice")
	}
}

func TestPrepareArchives(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"one.jpg": "1", "two.jpg": "2", "two.eps": "2v",
	}, "one.jpg", "two.jpg", "two.eps")

	artworks := []Artwork{
		{FilePath: filepath.Join(dir, "one.jpg")},
		{FilePath: filepath.Join(dir, "two.jpg"), VectorPath: filepath.Join(dir, "two.eps")},
	}
	zipper := archive.NewZipper()

	created, err := PrepareArchives(artworks, []Destination{{Host: "ftp://h/"}}, zipper)
	if err != nil || len(created) != 0 {
		t.Fatalf("no zip destination should create nothing, got %v, %v", created, err)
	}

	dests := []Destination{{Host: "ftp://h/", ZipBeforeUpload: true}}
	created, err = PrepareArchives(artworks, dests, zipper)
	if err != nil {
		t.Fatalf("PrepareArchives: %v", err)
	}
	want := filepath.Join(dir, "two.zip")
	if len(created) != 1 || created[0] != want {
		t.Fatalf("created = %v, want [%s]", created, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("archive not on disk: %v", err)
	}

	created, err = PrepareArchives(artworks, dests, zipper)
	if err != nil || len(created) != 0 {
		t.Errorf("existing archives should not be recreated, got %v, %v", created, err)
	}
}

func TestDiscoverArtworks(t *testing.T) {
	dir := t.TempDir()
	paths := writeFiles(t, dir, map[string]string{
		"a.jpg": "a", "a.eps": "av",
		"b.tif": "b", "b.ai": "bv",
		"c.png": "c",
		"d.jpg": "d", "d.eps": "dv",
		"lone.eps": "l",
	}, "a.jpg", "a.eps", "b.tif", "b.ai", "c.png", "d.jpg", "d.eps", "lone.eps")

	aJPG, aEPS, bTIF, bAI, cPNG, dJPG, dEPS, lone := paths[0], paths[1], paths[2], paths[3], paths[4], paths[5], paths[6], paths[7]

	got := DiscoverArtworks([]string{aJPG, bTIF, cPNG, dJPG, dEPS, lone}, true)
	want := []Artwork{
		{FilePath: aJPG, VectorPath: aEPS},
		{FilePath: bTIF, VectorPath: bAI},
		{FilePath: cPNG},
		{FilePath: dJPG, VectorPath: dEPS},
		{FilePath: lone},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DiscoverArtworks = %+v, want %+v", got, want)
	}

	got = DiscoverArtworks([]string{aJPG}, false)
	if len(got) != 1 || got[0].HasVector() {
		t.Errorf("without auto vectors, got %+v", got)
	}
}
