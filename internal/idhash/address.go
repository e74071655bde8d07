package idhash

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ContractAddress derives the address of the contract created by creator
// with the given nonce: keccak256(rlp(creator, nonce))[12:].
// The same (creator, nonce) pair always yields the same address.
func ContractAddress(creator common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(creator, nonce)
}
