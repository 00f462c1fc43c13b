package eth

import (
	"embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ABI names bundled with the adapter.
const (
	ABIERC20                 = "erc20"
	ABIOrderSystem           = "order_system"
	ABIAaveAddressesProvider = "aave_addresses_provider"
	ABIAavePool              = "aave_pool"
	ABIAaveOracle            = "aave_oracle"
)

// Contract method and event names used across packages.
const (
	MethodAllowance          = "allowance"
	MethodApprove            = "approve"
	MethodBalanceOf          = "balanceOf"
	MethodDecimals           = "decimals"
	MethodCreateOrder        = "createOrder"
	MethodShipOrder          = "shipOrder"
	MethodGetPool            = "getPool"
	MethodGetPriceOracle     = "getPriceOracle"
	MethodGetReservesList    = "getReservesList"
	MethodGetUserAccountData = "getUserAccountData"
	MethodBorrow             = "borrow"
	MethodGetAssetPrice      = "getAssetPrice"
	MethodBaseCurrencyUnit   = "BASE_CURRENCY_UNIT"

	EventOrderCreated = "OrderCreated"
	EventOrderShipped = "OrderShipped"
)

//go:embed abi/*.json
var abiFS embed.FS

// Contract binds a parsed ABI to a deployed address.
type Contract struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// LoadABI parses one of the bundled ABIs.
func LoadABI(name string) (abi.ABI, error) {
	raw, err := abiFS.ReadFile("abi/" + name + ".json")
	if err != nil {
		return abi.ABI{}, fmt.Errorf("unknown abi %q: %w", name, err)
	}
	parsed, err := abi.JSON(strings.NewReader(string(raw)))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parsing abi %q: %w", name, err)
	}
	return parsed, nil
}

// NewContract binds a bundled ABI to address. The address must be a
// 0x-prefixed hex address.
func NewContract(abiName, address string) (*Contract, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	parsed, err := LoadABI(abiName)
	if err != nil {
		return nil, err
	}
	return &Contract{Name: abiName, Address: addr, ABI: parsed}, nil
}

// MustContract is NewContract for addresses known at build time.
// It panics on a malformed address or ABI.
func MustContract(abiName, address string) *Contract {
	c, err := NewContract(abiName, address)
	if err != nil {
		panic(err)
	}
	return c
}

// At returns a copy of the contract bound to a different address, used for
// addresses resolved at runtime such as the Aave pool.
func (c *Contract) At(addr common.Address) *Contract {
	return &Contract{Name: c.Name, Address: addr, ABI: c.ABI}
}

// Call describes a contract method invocation.
type Call struct {
	Contract *Contract
	Method   string
	Args     []any
}

// pack ABI-encodes the call.
func (c Call) pack() ([]byte, error) {
	if c.Contract == nil {
		return nil, fmt.Errorf("%w: call %q has no contract", ErrInvalidCall, c.Method)
	}
	data, err := c.Contract.ABI.Pack(c.Method, c.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: packing %s.%s: %w", ErrInvalidCall, c.Contract.Name, c.Method, err)
	}
	return data, nil
}

func (c Call) String() string {
	if c.Contract == nil {
		return c.Method
	}
	return c.Contract.Name + "." + c.Method
}
