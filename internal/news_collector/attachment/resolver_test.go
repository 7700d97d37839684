package attachment

import (
	"testing"

	"news-collector/internal/news_collector/filter"
	"news-collector/internal/news_collector/model"
)

func testPolicy() model.ProcessorConfig {
	cfg := model.DefaultTenantConfig("t1").Processor
	cfg.KBID = "kb-1"
	return cfg
}

func testItem() model.FilteredItem {
	item := model.FilteredItem{
		CandidateItem: model.CandidateItem{
			SourceName: "gov",
			Title:      "Quarterly industry figures released",
			URL:        "https://example.com/news/q3",
		},
	}
	item.Fingerprint = filter.Fingerprint(item.Title, item.URL)
	return item
}

func TestResolveClassifiesByExtension(t *testing.T) {
	t.Parallel()
	page := `<html><body>
		<a href="/files/report.pdf">read more</a>
		<a href="/files/slides.pptx">slides</a>
		<a href="/about">about us</a>
	</body></html>`

	candidates, skipped := Resolve(testItem(), page, testPolicy())
	if len(skipped) != 0 {
		t.Fatalf("unexpected skipped records: %+v", skipped)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].InferredType != "pdf" || candidates[0].Signal != model.SignalExtension {
		t.Errorf("first candidate: %+v", candidates[0])
	}
	if candidates[0].URL != "https://example.com/files/report.pdf" {
		t.Errorf("relative href must resolve: %q", candidates[0].URL)
	}
	if candidates[0].Filename != "report.pdf" {
		t.Errorf("filename = %q", candidates[0].Filename)
	}
	if candidates[1].InferredType != "pptx" {
		t.Errorf("second candidate type = %q", candidates[1].InferredType)
	}
}

func TestResolveLinkTextKeyword(t *testing.T) {
	t.Parallel()
	page := `<html><body>
		<a href="/download?id=7">附件：完整PDF报告</a>
	</body></html>`

	candidates, _ := Resolve(testItem(), page, testPolicy())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Signal != model.SignalLinkText {
		t.Errorf("signal = %s", candidates[0].Signal)
	}
	if candidates[0].InferredType != "pdf" {
		t.Errorf("type inferred from context = %q", candidates[0].InferredType)
	}
}

func TestResolveURLKeyword(t *testing.T) {
	t.Parallel()
	page := `<html><body>
		<a href="/attachment/pdf/42">quarterly data</a>
	</body></html>`

	candidates, _ := Resolve(testItem(), page, testPolicy())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].Signal != model.SignalURLKeyword {
		t.Errorf("signal = %s", candidates[0].Signal)
	}
}

func TestResolveRejectsDisallowedType(t *testing.T) {
	t.Parallel()
	page := `<html><body>
		<a href="/files/data.xlsx">spreadsheet data file</a>
		<a href="/files/report.pdf">report</a>
	</body></html>`

	cfg := testPolicy() // 默认类型集不含 xlsx
	candidates, skipped := Resolve(testItem(), page, cfg)
	if len(candidates) != 1 || candidates[0].InferredType != "pdf" {
		t.Fatalf("only the pdf should survive: %+v", candidates)
	}
	if len(skipped) != 1 {
		t.Fatalf("expected 1 skipped record, got %d", len(skipped))
	}
	if skipped[0].Status != model.AttachmentSkipType {
		t.Errorf("status = %s", skipped[0].Status)
	}
	if skipped[0].Type != "xlsx" {
		t.Errorf("type = %q", skipped[0].Type)
	}
}

func TestResolveIgnoresPlainLinks(t *testing.T) {
	t.Parallel()
	page := `<html><body>
		<a href="/news/other-story">Another interesting story headline</a>
		<a href="mailto:desk@example.com">contact the newsroom here</a>
		<a href="#top">back to top of the page</a>
	</body></html>`

	candidates, skipped := Resolve(testItem(), page, testPolicy())
	if len(candidates) != 0 || len(skipped) != 0 {
		t.Fatalf("nothing should classify: %+v / %+v", candidates, skipped)
	}
}

func TestResolveDeduplicatesByNormalizedURL(t *testing.T) {
	t.Parallel()
	page := `<html><body>
		<a href="/files/report.pdf?utm_source=page">Download</a>
		<a href="/files/report.pdf">Download again</a>
		<a href="/files/report.pdf?id=2">Different document</a>
	</body></html>`

	candidates, _ := Resolve(testItem(), page, testPolicy())
	if len(candidates) != 2 {
		t.Fatalf("tracking-param variant must collapse, got %d candidates", len(candidates))
	}
}
