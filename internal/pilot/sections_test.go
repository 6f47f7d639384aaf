package pilot

import "testing"

const sampleReport = `# Daily Summary

## Executive Summary
All devices operated within normal ranges. Energy consumption
was 4% below the weekly average.

## Key Findings
- Sensor A recorded a brief temperature spike at 14:02.
- Gateway uptime held at 100%.
* Meter B reported no readings for 20 minutes.

## Recommendations
1. Inspect Sensor A's enclosure ventilation.
2) Verify Meter B's network link.

## Confidence Level
Roughly 85% based on available telemetry.
`

func TestExtractSection(t *testing.T) {
	got := extractSection(sampleReport, "Executive Summary")
	want := "All devices operated within normal ranges. Energy consumption\nwas 4% below the weekly average."
	if got != want {
		t.Errorf("extractSection = %q, want %q", got, want)
	}
}

func TestExtractSectionPrefixMatch(t *testing.T) {
	content := "## Root Causes (ranked by likelihood)\n- power brownout\n\n## Contributing Factors\n- heat"
	got := extractSection(content, "Root Causes")
	if got != "- power brownout" {
		t.Errorf("extractSection = %q", got)
	}
}

func TestExtractSectionCaseInsensitive(t *testing.T) {
	content := "## EXECUTIVE SUMMARY\nfine\n"
	if got := extractSection(content, "Executive Summary"); got != "fine" {
		t.Errorf("extractSection = %q", got)
	}
}

func TestExtractSectionMissing(t *testing.T) {
	if got := extractSection(sampleReport, "Appendix"); got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}

func TestExtractBullets(t *testing.T) {
	findings := extractBullets(extractSection(sampleReport, "Key Findings"), 10)
	if len(findings) != 3 {
		t.Fatalf("expected 3 findings, got %d: %v", len(findings), findings)
	}
	if findings[0] != "Sensor A recorded a brief temperature spike at 14:02." {
		t.Errorf("findings[0] = %q", findings[0])
	}
	if findings[2] != "Meter B reported no readings for 20 minutes." {
		t.Errorf("findings[2] = %q", findings[2])
	}

	recs := extractBullets(extractSection(sampleReport, "Recommendations"), 10)
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d: %v", len(recs), recs)
	}
	if recs[1] != "Verify Meter B's network link." {
		t.Errorf("recs[1] = %q", recs[1])
	}
}

func TestExtractBulletsCap(t *testing.T) {
	section := "- a\n- b\n- c\n- d"
	if got := extractBullets(section, 2); len(got) != 2 {
		t.Errorf("expected cap at 2, got %d", len(got))
	}
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{"present", sampleReport, 85},
		{"missing section", "## Summary\nfine", defaultConfidence},
		{"no percent", "## Confidence Level\nhigh", defaultConfidence},
		{"over range", "## Confidence\n250%", defaultConfidence},
		{"zero", "## Confidence\n0%", 0},
		{"hundred", "## Confidence\n100%", 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseConfidence(tt.content); got != tt.want {
				t.Errorf("parseConfidence = %d, want %d", got, tt.want)
			}
		})
	}
}
