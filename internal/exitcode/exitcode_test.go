package exitcode

import "testing"

func TestCancelCarriesSigintCode(t *testing.T) {
	err := Cancel()
	if err.Code != Cancelled {
		t.Errorf("Code=%d, want %d", err.Code, Cancelled)
	}
	if err.Error() != "cancelled" {
		t.Errorf("Error()=%q", err.Error())
	}
}
