package vision

import (
	"context"
	"fmt"
	"log"
	"strings"

	pw "github.com/playwright-community/playwright-go"
)

// truthy tokens for checkbox/radio values.
var truthyTokens = map[string]bool{
	"true": true,
	"yes":  true,
	"1":    true,
	"on":   true,
}

// Truthy interprets a plain string value as a checkbox state.
func Truthy(value string) bool {
	return truthyTokens[strings.ToLower(strings.TrimSpace(value))]
}

// ResolveField maps a field key (selector, id, name or label) to a selector
// against the most recent scan snapshot.
func (a *Agent) ResolveField(key string) string {
	a.mu.Lock()
	snapshot := a.lastScan
	a.mu.Unlock()
	return resolveSelector(key, snapshot)
}

// FillForm fills each field of the map independently and returns a per-key
// success map. One field failing never aborts the rest. Dispatch is by the
// live element's tag and type at fill time, not the cached descriptor's,
// since the DOM may have changed since the scan.
func (a *Agent) FillForm(ctx context.Context, fieldMap map[string]string) map[string]bool {
	results := make(map[string]bool, len(fieldMap))
	if a.page == nil {
		for key := range fieldMap {
			results[key] = false
		}
		return results
	}

	for key, value := range fieldMap {
		if err := ctx.Err(); err != nil {
			results[key] = false
			continue
		}

		selector := a.ResolveField(key)
		if selector == "" {
			log.Printf("⚠️ Could not resolve selector for: %s", key)
			results[key] = false
			continue
		}

		if err := a.fillOne(selector, value); err != nil {
			log.Printf("❌ Failed to fill field '%s': %v", key, err)
			results[key] = false
			continue
		}
		results[key] = true

		// State capture after each field for observability.
		_, _ = a.CaptureState(ctx)
	}

	return results
}

func (a *Agent) fillOne(selector, value string) error {
	loc := a.page.Locator(selector).First()

	if err := loc.WaitFor(pw.LocatorWaitForOptions{Timeout: pw.Float(5000)}); err != nil {
		return fmt.Errorf("element not found: %w", err)
	}

	raw, err := loc.Evaluate("el => [el.tagName.toLowerCase(), el.type || '']", nil)
	if err != nil {
		return fmt.Errorf("element inspect failed: %w", err)
	}
	tagName, inputType := liveTagType(raw)

	// Human-like pacing before every interaction.
	a.randomDelay(50, 400)

	switch {
	case tagName == "select":
		values := []string{value}
		if _, err := loc.SelectOption(pw.SelectOptionValues{Values: &values}, pw.LocatorSelectOptionOptions{Timeout: pw.Float(5000)}); err != nil {
			return fmt.Errorf("select option failed: %w", err)
		}
		log.Printf("✅ Selected option '%s' for: %s", value, selector)

	case tagName == "input" && inputType == "checkbox":
		checked, err := loc.IsChecked()
		if err != nil {
			return fmt.Errorf("checkbox state read failed: %w", err)
		}
		if checked != Truthy(value) {
			if err := loc.Click(); err != nil {
				return fmt.Errorf("checkbox click failed: %w", err)
			}
		}
		log.Printf("✅ Set checkbox to %v for: %s", Truthy(value), selector)

	case tagName == "input" && inputType == "radio":
		if err := loc.Click(); err != nil {
			return fmt.Errorf("radio click failed: %w", err)
		}
		log.Printf("✅ Selected radio for: %s", selector)

	case tagName == "input" && inputType == "file":
		if err := loc.SetInputFiles(value); err != nil {
			return fmt.Errorf("file attach failed: %w", err)
		}
		log.Printf("✅ Attached file for: %s", selector)

	default:
		// Text inputs, textareas and everything else: focus, select-all,
		// then type the replacement value.
		if err := loc.Click(); err != nil {
			return fmt.Errorf("focus click failed: %w", err)
		}
		_ = a.page.Keyboard().Press("Control+a")
		a.randomDelay(50, 100)
		if err := loc.Fill(value); err != nil {
			return fmt.Errorf("fill failed: %w", err)
		}
		preview := value
		if len(preview) > 30 {
			preview = preview[:30] + "..."
		}
		log.Printf("✅ Filled '%s' for: %s", preview, selector)
	}

	return nil
}

// liveTagType decodes the [tagName, type] pair returned by the inspect
// snippet. Unknown shapes fall back to text handling.
func liveTagType(raw interface{}) (string, string) {
	pair, ok := raw.([]interface{})
	if !ok || len(pair) < 2 {
		return "", ""
	}
	tag, _ := pair[0].(string)
	typ, _ := pair[1].(string)
	return tag, typ
}
