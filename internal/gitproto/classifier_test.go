package gitproto

import "testing"

func TestClassifyAdvertisement(t *testing.T) {
	adv, path, svc := Classify("/my/repo.git/info/refs?service=git-upload-pack", "GET", "")
	if !adv {
		t.Fatalf("expected advertisement")
	}
	if path != "my/repo.git" {
		t.Fatalf("unexpected project path: %q", path)
	}
	if svc != UploadPack {
		t.Fatalf("unexpected service: %v", svc)
	}
}

func TestClassifyAdvertisementUnknownServiceName(t *testing.T) {
	adv, _, svc := Classify("/repo.git/info/refs?service=git-frobnicate", "GET", "")
	if adv || svc != ServiceUnknown {
		t.Fatalf("expected degraded classification, got adv=%v svc=%v", adv, svc)
	}
}

func TestClassifyDirectService(t *testing.T) {
	adv, path, svc := Classify("/repo.git/git-receive-pack", "POST", "application/x-git-receive-pack-request")
	if adv {
		t.Fatalf("direct service request should not be an advertisement")
	}
	if path != "repo.git" {
		t.Fatalf("unexpected project path: %q", path)
	}
	if svc != ReceivePack {
		t.Fatalf("unexpected service: %v", svc)
	}
}

func TestClassifyDirectServiceWrongContentType(t *testing.T) {
	_, _, svc := Classify("/repo.git/git-receive-pack", "POST", "text/plain")
	if svc != ServiceUnknown {
		t.Fatalf("expected ServiceUnknown for mismatched content type, got %v", svc)
	}
}

func TestClassifyDirectServiceWrongMethod(t *testing.T) {
	_, _, svc := Classify("/repo.git/git-receive-pack", "GET", "application/x-git-receive-pack-request")
	if svc != ServiceUnknown {
		t.Fatalf("expected ServiceUnknown for GET on direct service path, got %v", svc)
	}
}

func TestClassifyUnrelatedPath(t *testing.T) {
	adv, path, svc := Classify("/favicon.ico", "GET", "")
	if adv || path != "" || svc != ServiceUnknown {
		t.Fatalf("expected fully degraded classification, got adv=%v path=%q svc=%v", adv, path, svc)
	}
}

func TestClassifyMalformedURL(t *testing.T) {
	adv, path, svc := Classify("://bad", "GET", "")
	if adv || path != "" || svc != ServiceUnknown {
		t.Fatalf("expected fully degraded classification for unparseable URL")
	}
}

func TestValidPath(t *testing.T) {
	valid := []string{"repo.git", "org/repo.git", "a/b/c.git"}
	invalid := []string{"a//b", "a/./b", "a/../b", `a\..\b`}
	for _, p := range valid {
		if !ValidPath(p) {
			t.Errorf("expected %q to be valid", p)
		}
	}
	for _, p := range invalid {
		if ValidPath(p) {
			t.Errorf("expected %q to be invalid", p)
		}
	}
}
