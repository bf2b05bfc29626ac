package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewEVMMissingConfig(t *testing.T) {
	if _, err := NewEVM(EVMOptions{}, zerolog.Nop()); err == nil {
		t.Fatal("未配置 RPC 时应报错")
	}

	if _, err := NewEVM(EVMOptions{RPCURL: "http://localhost:8545"}, zerolog.Nop()); err == nil {
		t.Fatal("缺少合约地址应报错")
	}

	_, err := NewEVM(EVMOptions{
		RPCURL:        "http://localhost:8545",
		RouterAddress: "0x1",
		PoolAddress:   "0x2",
		PrivateKey:    "not-a-key",
	}, zerolog.Nop())
	if err == nil {
		t.Fatal("非法私钥应报错")
	}
}

func TestNewEVMDefaults(t *testing.T) {
	e, err := NewEVM(EVMOptions{
		RPCURL:        "http://localhost:8545",
		RouterAddress: "0x1",
		PoolAddress:   "0x2",
		PrivateKey:    "0x" + testKey,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEVM: %v", err)
	}
	if e.opts.GasLimit == 0 {
		t.Fatal("GasLimit 应有默认值")
	}
	if e.opts.Timeout <= 0 {
		t.Fatal("Timeout 应有默认值")
	}
	if e.from == (common.Address{}) {
		t.Fatal("应从私钥推导出发送地址")
	}
}

func TestToUnits(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int32
		want     string
	}{
		{"1", 6, "1000000"},
		{"0.5", 6, "500000"},
		{"1.23456789", 6, "1234567"},
		{"100", 18, "100000000000000000000"},
		{"0", 6, "0"},
	}
	for _, tc := range cases {
		got := toUnits(decimal.RequireFromString(tc.amount), tc.decimals)
		if got.String() != tc.want {
			t.Errorf("toUnits(%s, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}
