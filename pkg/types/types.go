package types

// Method names a connector API call carried in an RPCRequest.
type Method string

// Session control methods
const (
	MethodConnect             Method = "connect"
	MethodHintUsage           Method = "hintUsage"
	MethodGetConnectionStatus Method = "getConnectionStatus"
)

// Capability-bearing methods. Each one is a permission name in the ledger.
const (
	MethodGetConfiguration           Method = "getConfiguration"
	MethodGetShieldedBalances        Method = "getShieldedBalances"
	MethodGetUnshieldedBalances      Method = "getUnshieldedBalances"
	MethodGetDustBalance             Method = "getDustBalance"
	MethodGetShieldedAddresses       Method = "getShieldedAddresses"
	MethodGetUnshieldedAddress       Method = "getUnshieldedAddress"
	MethodGetDustAddress             Method = "getDustAddress"
	MethodGetTxHistory               Method = "getTxHistory"
	MethodBalanceUnsealedTransaction Method = "balanceUnsealedTransaction"
	MethodBalanceSealedTransaction   Method = "balanceSealedTransaction"
	MethodMakeTransfer               Method = "makeTransfer"
	MethodMakeIntent                 Method = "makeIntent"
	MethodSignData                   Method = "signData"
	MethodSubmitTransaction          Method = "submitTransaction"
	MethodGetProvingProvider         Method = "getProvingProvider"
)

// AllCapabilityMethods returns every method that requires a permission grant
func AllCapabilityMethods() []Method {
	return []Method{
		MethodGetConfiguration,
		MethodGetShieldedBalances,
		MethodGetUnshieldedBalances,
		MethodGetDustBalance,
		MethodGetShieldedAddresses,
		MethodGetUnshieldedAddress,
		MethodGetDustAddress,
		MethodGetTxHistory,
		MethodBalanceUnsealedTransaction,
		MethodBalanceSealedTransaction,
		MethodMakeTransfer,
		MethodMakeIntent,
		MethodSignData,
		MethodSubmitTransaction,
		MethodGetProvingProvider,
	}
}

// IsCapabilityMethod reports whether m can be granted to an origin
func IsCapabilityMethod(m string) bool {
	for _, c := range AllCapabilityMethods() {
		if string(c) == m {
			return true
		}
	}
	return false
}

// IsKnownMethod reports whether m is any method the host dispatches
func IsKnownMethod(m string) bool {
	switch Method(m) {
	case MethodConnect, MethodHintUsage, MethodGetConnectionStatus:
		return true
	}
	return IsCapabilityMethod(m)
}

// IsMutating reports whether a successful call changes backend state and
// therefore needs a snapshot persisted afterwards.
func IsMutating(m Method) bool {
	switch m {
	case MethodBalanceUnsealedTransaction, MethodBalanceSealedTransaction,
		MethodMakeTransfer, MethodMakeIntent, MethodSubmitTransaction:
		return true
	}
	return false
}
