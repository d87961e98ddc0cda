package api

import "testing"

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"records.csv", "records.csv"},
		{"My cool movie.mov", "My_cool_movie.mov"},
		{"../../../etc/passwd", "etc_passwd"},
		{`..\..\windows\system.csv`, "windows_system.csv"},
		{"i contain cool \xc3\xbcml\xc3\xa4uts.txt", "i_contain_cool_umlauts.txt"},
		{"résumé.csv", "resume.csv"},
		{"data (final).csv", "data_final.csv"},
		{".hidden.csv", "hidden.csv"},
		{"__init__.csv", "init__.csv"},
		{"日本語", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := secureFilename(tt.in); got != tt.want {
			t.Errorf("secureFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
