package types

// Balances maps token type to an amount encoded as a decimal string.
type Balances map[string]string

// ShieldedAddresses is the result of getShieldedAddresses
type ShieldedAddresses struct {
	ShieldedAddress             string `json:"shieldedAddress"`
	ShieldedCoinPublicKey       string `json:"shieldedCoinPublicKey"`
	ShieldedEncryptionPublicKey string `json:"shieldedEncryptionPublicKey"`
}

// UnshieldedAddress is the result of getUnshieldedAddress
type UnshieldedAddress struct {
	UnshieldedAddress string `json:"unshieldedAddress"`
}

// DustAddress is the result of getDustAddress
type DustAddress struct {
	DustAddress string `json:"dustAddress"`
}

// DustBalance is the result of getDustBalance
type DustBalance struct {
	Balance string `json:"balance"`
	Cap     string `json:"cap"`
}

// Output kinds for DesiredOutput
const (
	OutputKindShielded   = "shielded"
	OutputKindUnshielded = "unshielded"
)

// DesiredOutput is one recipient of a transfer or intent
type DesiredOutput struct {
	Kind      string `json:"kind"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Recipient string `json:"recipient"`
}

// DesiredInput is one input an intent should consume
type DesiredInput struct {
	Kind  string `json:"kind"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IntentOptions configures makeIntent. IntentID is a number or "random".
type IntentOptions struct {
	IntentID any  `json:"intentId"`
	PayFees  bool `json:"payFees"`
}

// SignData payload encodings
const (
	EncodingText   = "text"
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// SignDataOptions configures signData
type SignDataOptions struct {
	Encoding string `json:"encoding"`
	KeyType  string `json:"keyType,omitempty"`
}

// Signature is the result of signData
type Signature struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
	VerifyKey string `json:"verifyingKey"`
}

// TxResult carries a serialized transaction
type TxResult struct {
	Tx string `json:"tx"`
}

// HistoryEntry is one page item of getTxHistory
type HistoryEntry struct {
	TxHash    string `json:"txHash"`
	Timestamp string `json:"timestamp"`
}

// Configuration is the result of getConfiguration
type Configuration struct {
	IndexerURI       string `json:"indexerUri"`
	IndexerWsURI     string `json:"indexerWsUri"`
	ProverServerURI  string `json:"proverServerUri"`
	SubstrateNodeURI string `json:"substrateNodeUri"`
	NetworkID        string `json:"networkId"`
}

// Connection states reported by getConnectionStatus
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// ConnectionStatus is the result of getConnectionStatus
type ConnectionStatus struct {
	Status    string `json:"status"`
	NetworkID string `json:"networkId,omitempty"`
}
