package tlscert

import "testing"

func TestGenerateReturnsUsableCertificate(t *testing.T) {
	cfg, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("Certificates = %d, want 1", len(cfg.Certificates))
	}
	if len(cfg.Certificates[0].Certificate) == 0 {
		t.Fatal("certificate DER bytes are empty")
	}
}

func TestGenerateProducesDistinctCertificatesEachCall(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	if string(a.Certificates[0].Certificate[0]) == string(b.Certificates[0].Certificate[0]) {
		t.Fatal("two generated certificates must not be byte-identical (fresh key + serial per call)")
	}
}
