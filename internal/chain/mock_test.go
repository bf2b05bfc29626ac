package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"driftbuy/internal/market"
)

func TestMockSeedsBalancesOnFirstTouch(t *testing.T) {
	m := NewMock()

	stable, err := m.Balance(context.Background(), "0xabc", AssetStable)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if !stable.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("初始稳定币余额应为 1000, 实际 %s", stable)
	}

	target, err := m.Balance(context.Background(), "0xabc", AssetTarget)
	if err != nil {
		t.Fatalf("不应报错: %v", err)
	}
	if !target.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("初始目标币余额应为 100, 实际 %s", target)
	}
}

func TestMockConvertMovesBalances(t *testing.T) {
	m := NewMock()

	res, err := m.Convert(context.Background(), decimal.NewFromInt(100), "0xabc")
	if err != nil {
		t.Fatalf("转换不应报错: %v", err)
	}
	if res.TxHash == "" {
		t.Fatal("应返回交易哈希")
	}
	if !res.Received.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("100 稳定币按 0.1 汇率应得 10, 实际 %s", res.Received)
	}

	stable, _ := m.Balance(context.Background(), "0xabc", AssetStable)
	if !stable.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("稳定币余额应扣减至 900, 实际 %s", stable)
	}
	target, _ := m.Balance(context.Background(), "0xabc", AssetTarget)
	if !target.Equal(decimal.NewFromInt(110)) {
		t.Fatalf("目标币余额应增至 110, 实际 %s", target)
	}
}

func TestMockConvertInsufficientBalance(t *testing.T) {
	m := NewMock()

	_, err := m.Convert(context.Background(), decimal.NewFromInt(5000), "0xabc")
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("余额不足应返回 ErrInsufficientBalance, 实际 %v", err)
	}

	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("错误应为 *ExecError, 实际 %T", err)
	}
	if execErr.Op != "convert" {
		t.Fatalf("Op = %q, 期望 convert", execErr.Op)
	}
}

func TestMockConvertFaultInjection(t *testing.T) {
	m := NewMock()
	m.ConvertErr = errors.New("rpc timeout")

	if _, err := m.Convert(context.Background(), decimal.NewFromInt(1), "0xabc"); err == nil {
		t.Fatal("注入故障后转换应失败")
	}
}

func TestMockDepositAndWithdraw(t *testing.T) {
	m := NewMock()
	mk := market.Market{Asset: "USDC"}

	dep, err := m.Deposit(context.Background(), decimal.NewFromInt(50), mk)
	if err != nil {
		t.Fatalf("存入不应报错: %v", err)
	}
	if dep.PositionRef == "" {
		t.Fatal("应返回仓位引用")
	}
	if !m.Deposited().Equal(decimal.NewFromInt(50)) {
		t.Fatalf("存入总额应为 50, 实际 %s", m.Deposited())
	}

	if _, err := m.Withdraw(context.Background(), decimal.NewFromInt(60), dep.PositionRef, mk); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("超额提取应返回 ErrInsufficientBalance, 实际 %v", err)
	}

	if _, err := m.Withdraw(context.Background(), decimal.NewFromInt(20), dep.PositionRef, mk); err != nil {
		t.Fatalf("部分提取不应报错: %v", err)
	}
	if !m.Deposited().Equal(decimal.NewFromInt(30)) {
		t.Fatalf("剩余仓位应为 30, 实际 %s", m.Deposited())
	}

	if _, err := m.Withdraw(context.Background(), decimal.NewFromInt(30), dep.PositionRef, mk); err != nil {
		t.Fatalf("全额提取不应报错: %v", err)
	}
	if _, err := m.Withdraw(context.Background(), decimal.NewFromInt(1), dep.PositionRef, mk); err == nil {
		t.Fatal("已清空的仓位不应再可提取")
	}
}

func TestMockDepositRejectsNonPositive(t *testing.T) {
	m := NewMock()
	if _, err := m.Deposit(context.Background(), decimal.Zero, market.Market{}); err == nil {
		t.Fatal("零金额存入应报错")
	}
}
