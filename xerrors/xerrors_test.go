package xerrors

import (
	"errors"
	"testing"
)

func TestWrap(t *testing.T) {
	// nil 错误应返回 nil
	if err := Wrap(nil, "context"); err != nil {
		t.Errorf("Wrap(nil) = %v，期望 nil", err)
	}

	// 包装后的错误应包含消息
	base := errors.New("base error")
	wrapped := Wrap(base, "context")
	if wrapped == nil {
		t.Fatal("Wrap(err) = nil，期望非 nil")
	}
	if wrapped.Error() != "context: base error" {
		t.Errorf("Wrap(err).Error() = %q，期望 %q", wrapped.Error(), "context: base error")
	}

	// 应保留错误链
	if !errors.Is(wrapped, base) {
		t.Error("errors.Is(wrapped, base) = false，期望 true")
	}
}

func TestWrapf(t *testing.T) {
	if err := Wrapf(nil, "item %d", 42); err != nil {
		t.Errorf("Wrapf(nil) = %v，期望 nil", err)
	}

	base := errors.New("not found")
	wrapped := Wrapf(base, "item %d", 42)
	if wrapped.Error() != "item 42: not found" {
		t.Errorf("Wrapf(err).Error() = %q，期望 %q", wrapped.Error(), "item 42: not found")
	}
}

func TestWithCode(t *testing.T) {
	if err := WithCode(nil, "CODE"); err != nil {
		t.Errorf("WithCode(nil) = %v，期望 nil", err)
	}

	base := errors.New("db unavailable")
	coded := WithCode(base, "DB_UNAVAILABLE")
	if coded.Error() != "[DB_UNAVAILABLE] db unavailable" {
		t.Errorf("WithCode(err).Error() = %q，期望 %q", coded.Error(), "[DB_UNAVAILABLE] db unavailable")
	}

	if code := GetCode(coded); code != "DB_UNAVAILABLE" {
		t.Errorf("GetCode(coded) = %q，期望 %q", code, "DB_UNAVAILABLE")
	}

	// 错误链应保留
	if !errors.Is(coded, base) {
		t.Error("errors.Is(coded, base) = false，期望 true")
	}
}

func TestCombine(t *testing.T) {
	if err := Combine(nil, nil); err != nil {
		t.Errorf("Combine(nil, nil) = %v，期望 nil", err)
	}

	e1 := errors.New("constraints list failed")
	if err := Combine(nil, e1); err != e1 {
		t.Errorf("Combine(nil, e1) = %v，期望 e1", err)
	}

	e2 := errors.New("pod scan failed")
	combined := Combine(e1, e2)
	if combined == nil {
		t.Fatal("Combine(e1, e2) = nil，期望非 nil")
	}

	// 两个错误都应在错误链中可识别
	if !errors.Is(combined, e1) || !errors.Is(combined, e2) {
		t.Error("errors.Is 无法在合并错误中找到原始错误")
	}
}
