package migrate_test

import (
	"testing"

	"github.com/MoneyMiii/tennis-booking/internal/migrate"
)

func TestFiles_Ordered(t *testing.T) {
	files, err := migrate.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) == 0 || files[0] != "0001_init.sql" {
		t.Fatalf("files = %v", files)
	}
	for i := 1; i < len(files); i++ {
		if files[i-1] >= files[i] {
			t.Fatalf("files not sorted: %v", files)
		}
	}
}
