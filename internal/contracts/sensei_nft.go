// Package contracts holds the ABIs of the contracts the client talks to.
package contracts

// SenseiNFTABI is the subset of the deployed SenseiNFT ABI used by the client.
const SenseiNFTABI = `[
	{
		"inputs": [],
		"name": "makeSenseiNFT",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getTotalNFTS",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "tokenId", "type": "uint256"}
		],
		"name": "NewSenseiNFTMinted",
		"type": "event"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "internalType": "uint256", "name": "totalNfts", "type": "uint256"}
		],
		"name": "TotalNFTMinted",
		"type": "event"
	}
]`

const (
	MethodMakeSenseiNFT = "makeSenseiNFT"
	MethodGetTotalNFTS  = "getTotalNFTS"

	EventNewSenseiNFTMinted = "NewSenseiNFTMinted"
	EventTotalNFTMinted     = "TotalNFTMinted"
)
