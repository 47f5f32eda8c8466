package db

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestOpenGormSQLite(t *testing.T) {
	gdb, err := OpenGorm(Config{Driver: DriverSQLite, DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var one int
	if err := gdb.Raw("SELECT 1").Scan(&one).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if one != 1 {
		t.Fatalf("expected 1, got %d", one)
	}
}

func TestOpenGormUnknownDriver(t *testing.T) {
	if _, err := OpenGorm(Config{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
