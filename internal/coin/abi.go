package coin

import (
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DefaultEventSignature is the coin factory's creation event.
const DefaultEventSignature = "CoinCreated(address indexed coin, address indexed creator, string name, string symbol, string uri, uint256 initialSupply, uint256 maxSupply)"

// DefaultFactoryAddress is the coin factory on Base Sepolia.
const DefaultFactoryAddress = "0x777777751622c0d3258f214F9DF38E35BF45baF3"

// Argument names the decoder reads from the creation event.
const (
	ArgCoin    = "coin"
	ArgCreator = "creator"
	ArgName    = "name"
	ArgSymbol  = "symbol"
	ArgURI     = "uri"
)

var (
	defaultEvent     abi.Event
	defaultEventOnce sync.Once
	defaultEventErr  error
)

// DefaultEvent returns the parsed DefaultEventSignature.
func DefaultEvent() (abi.Event, error) {
	defaultEventOnce.Do(func() {
		defaultEvent, defaultEventErr = ParseEventSignature(DefaultEventSignature)
	})
	return defaultEvent, defaultEventErr
}
