package formfiller

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightFiller fills application forms with a headless Chromium browser.
// It uploads the resume, fills the cover-letter field and obvious contact
// inputs, then screenshots the prepared form. It never clicks submit.
type PlaywrightFiller struct {
	headless    bool
	artifactDir string
}

// NewPlaywrightFiller constructs a filler writing screenshots to artifactDir.
func NewPlaywrightFiller(headless bool, artifactDir string) (*PlaywrightFiller, error) {
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &PlaywrightFiller{headless: headless, artifactDir: artifactDir}, nil
}

// Fill implements Filler. A browser is launched per attempt: attempts are
// minutes apart by design, and a fresh context avoids session bleed between
// candidates.
func (f *PlaywrightFiller) Fill(ctx context.Context, req FillRequest) (*FillResult, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(f.headless),
	})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}

	if _, err := page.Goto(req.PostingURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, fmt.Errorf("open posting: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	applyButton := page.Locator(`button:has-text("Easy Apply"), button:has-text("Apply")`).First()
	visible, err := applyButton.IsVisible()
	if err != nil || !visible {
		return &FillResult{Filled: false, Message: "no apply button on posting page"}, nil
	}
	if err := applyButton.Click(); err != nil {
		return &FillResult{Filled: false, Message: fmt.Sprintf("apply button click failed: %v", err)}, nil
	}
	page.WaitForTimeout(2000)

	if err := f.fillForm(page, req); err != nil {
		return &FillResult{Filled: false, Message: err.Error()}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	artifact := filepath.Join(f.artifactDir,
		fmt.Sprintf("fill-%d.png", time.Now().UnixMilli()))
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(artifact),
		FullPage: playwright.Bool(true),
	}); err != nil {
		log.Printf("[formfiller] screenshot failed: %v", err)
		artifact = ""
	}

	return &FillResult{
		Filled:       true,
		ArtifactPath: artifact,
		Message:      "form filled, awaiting manual confirmation",
	}, nil
}

func (f *PlaywrightFiller) fillForm(page playwright.Page, req FillRequest) error {
	fileInput := page.Locator(`input[type="file"]`)
	count, err := fileInput.Count()
	if err != nil {
		return fmt.Errorf("locate file input: %w", err)
	}
	if count > 0 {
		if err := fileInput.First().SetInputFiles(req.ResumePath); err != nil {
			return fmt.Errorf("upload resume: %w", err)
		}
		page.WaitForTimeout(2000)
	}

	if req.CoverLetter != "" {
		coverInput := page.Locator(`textarea[name*="cover"], textarea[placeholder*="cover"]`)
		if n, err := coverInput.Count(); err == nil && n > 0 {
			if err := coverInput.First().Fill(req.CoverLetter); err != nil {
				return fmt.Errorf("fill cover letter: %w", err)
			}
		}
	}

	// Contact fields are best-effort: forms vary too much to treat a miss
	// as a failure.
	for selector, value := range map[string]string{
		`input[name*="name"]:visible`: req.FullName,
		`input[type="email"]:visible`: req.Email,
		`input[type="tel"]:visible`:   req.Phone,
	} {
		if value == "" {
			continue
		}
		field := page.Locator(selector)
		if n, err := field.Count(); err == nil && n > 0 {
			_ = field.First().Fill(value)
		}
	}

	page.WaitForTimeout(1000)
	return nil
}
