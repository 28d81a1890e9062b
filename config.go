package bonding

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"

	"github.com/videocoin/go-bonding/store"
)

// Config is read from the environment, e.g. BONDING_UNBONDING_PERIOD.
type Config struct {
	UnbondingPeriod uint64         `split_words:"true" default:"2"`
	RoundLength     uint64         `split_words:"true" default:"50"`
	Escrow          common.Address `default:"0x000000000000000000000000000000000000e5c0"`

	// DataDir selects leveldb storage. Empty keeps everything in memory.
	DataDir     string `split_words:"true"`
	Cache       int    `default:"16"`
	Handles     int    `default:"16"`
	RecordCache int    `split_words:"true" default:"1024"`
}

func LoadConfig(prefix string) (Config, error) {
	var c Config
	err := envconfig.Process(prefix, &c)
	return c, err
}

func (c Config) OpenStore() (*store.Store, error) {
	if c.DataDir == "" {
		return store.NewMemory(c.RecordCache)
	}
	return store.Open(c.DataDir, c.Cache, c.Handles, c.RecordCache)
}
