package language

import (
	"strings"
	"testing"
)

func TestDetectEnglishProse(t *testing.T) {
	text := strings.Repeat("The study reports a randomized controlled trial of a novel intervention. ", 4)
	d := Detect(text)
	if d.Code != English {
		t.Fatalf("expected en, got %s (%s)", d.Code, d.Name)
	}
	if !d.Supported() {
		t.Fatalf("english must be supported")
	}
}

func TestDetectChineseProse(t *testing.T) {
	text := strings.Repeat("本研究通过随机对照试验评估了新型干预措施的有效性与安全性。", 3)
	d := Detect(text)
	if d.Code != Chinese {
		t.Fatalf("expected zh, got %s (%s)", d.Code, d.Name)
	}
}

func TestDetectMixedLatinHanPrefersChinese(t *testing.T) {
	// Han share above the 10% threshold wins even with plenty of latin.
	text := strings.Repeat("The p-value 方法学的问题 was significant 在样本中 overall. ", 5)
	d := Detect(text)
	if d.Code != Chinese {
		t.Fatalf("expected zh for mixed text, got %s", d.Code)
	}
}

func TestDetectCyrillicUnsupported(t *testing.T) {
	// Pure Cyrillic never reaches the latin-dominant branch and falls
	// through to Unknown.
	text := strings.Repeat("Исследование показало значительное улучшение показателей в группе. ", 3)
	d := Detect(text)
	if d.Code != Unsupported {
		t.Fatalf("expected unsupported, got %s", d.Code)
	}
	if d.Supported() {
		t.Fatalf("cyrillic text must not be supported")
	}
}

func TestDetectLatinCyrillicMixRussian(t *testing.T) {
	// Latin-dominant text with a heavy Cyrillic share is flagged Russian.
	text := strings.Repeat("The results of the experiment were convincing Данные Данные. ", 4)
	d := Detect(text)
	if d.Code != Unsupported || d.Name != "Russian" {
		t.Fatalf("expected unsupported Russian, got %s (%s)", d.Code, d.Name)
	}
}

func TestDetectKanaUnsupported(t *testing.T) {
	// Kana-dominant text. Kanji-heavy Japanese trips the Han check first
	// and reads as Chinese.
	text := strings.Repeat("ここではとてもよいけっかがみられました。すごいですね。", 3)
	d := Detect(text)
	if d.Code != Unsupported {
		t.Fatalf("expected unsupported, got %s (%s)", d.Code, d.Name)
	}
	if d.Name != "Japanese" {
		t.Fatalf("expected Japanese, got %s", d.Name)
	}
}

func TestDetectShortTextDefaultsEnglish(t *testing.T) {
	if d := Detect("ok"); d.Code != English {
		t.Fatalf("short text should default to en, got %s", d.Code)
	}
	if d := Detect("   "); d.Code != English {
		t.Fatalf("blank text should default to en, got %s", d.Code)
	}
}
