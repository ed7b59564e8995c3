package rpc

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ethService answers the handful of eth_ methods the pool forwards
type ethService struct {
	nonce     uint64
	callDelay time.Duration
}

func (s *ethService) BlockNumber() hexutil.Uint64 { return 18_000_000 }

func (s *ethService) ChainId() *hexutil.Big { return (*hexutil.Big)(big.NewInt(1)) }

func (s *ethService) GetTransactionCount(_ common.Address, _ string) (hexutil.Uint64, error) {
	return hexutil.Uint64(s.nonce), nil
}

func (s *ethService) Call(ctx context.Context, _ map[string]interface{}, _ string) (hexutil.Bytes, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.callDelay):
		return hexutil.Bytes{0x2a}, nil
	}
}

func dialInProc(t *testing.T, svc *ethService) *ethclient.Client {
	t.Helper()
	srv := gethrpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", svc))
	t.Cleanup(srv.Stop)
	return ethclient.NewClient(gethrpc.DialInProc(srv))
}

func TestGetClientEmptyPool(t *testing.T) {
	_, err := NewPool(Config{}).GetClient()
	assert.ErrorIs(t, err, ErrNoClients)

	_, err = NewPool(Config{}).PendingNonceAt(context.Background(), common.Address{})
	assert.ErrorIs(t, err, ErrNoClients)
}

func TestGetClientPrefersFastHealthy(t *testing.T) {
	p := NewPool(Config{})
	p.Add("slow", dialInProc(t, &ethService{}), 10*time.Millisecond)
	p.Add("fast", dialInProc(t, &ethService{}), time.Millisecond)

	c, err := p.GetClient()
	require.NoError(t, err)
	assert.Equal(t, "fast", c.endpoint)

	for _, c := range p.clients {
		c.healthy = false
	}
	c, err = p.GetClient()
	require.NoError(t, err)
	assert.Equal(t, "slow", c.endpoint, "falls back to the first client")
	assert.False(t, p.Healthy())
}

func TestPoolForwardsReads(t *testing.T) {
	p := NewPool(Config{RequestTimeout: time.Second})
	p.Add("inproc", dialInProc(t, &ethService{nonce: 9}), 0)

	nonce, err := p.PendingNonceAt(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), nonce)

	id, err := p.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id.Int64())

	to := common.HexToAddress("0x02")
	out, err := p.CallContract(context.Background(), ethereum.CallMsg{To: &to}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2a}, out)
}

func TestPoolAppliesPerCallDeadline(t *testing.T) {
	p := NewPool(Config{RequestTimeout: 20 * time.Millisecond})
	p.Add("inproc", dialInProc(t, &ethService{callDelay: time.Second}), 0)

	to := common.HexToAddress("0x02")
	start := time.Now()
	_, err := p.CallContract(context.Background(), ethereum.CallMsg{To: &to}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestCheckHealthMarksDeadClients(t *testing.T) {
	p := NewPool(Config{RequestTimeout: 100 * time.Millisecond})
	dead := dialInProc(t, &ethService{})
	dead.Close()
	p.Add("dead", dead, 0)
	p.Add("alive", dialInProc(t, &ethService{}), time.Hour)

	p.checkHealth(context.Background())

	assert.False(t, p.clients[0].healthy)
	assert.True(t, p.clients[1].healthy)
	assert.Less(t, p.clients[1].latency, time.Hour)

	c, err := p.GetClient()
	require.NoError(t, err)
	assert.Equal(t, "alive", c.endpoint)
}
