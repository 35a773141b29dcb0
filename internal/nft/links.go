package nft

import (
	"fmt"
	"math/big"
	"strings"
)

// MintedMessage is shown after any NewSenseiNFTMinted event.
const MintedMessage = "Hey there! We've minted your NFT and sent it to your wallet. It may be blank right now. It can take a max of 10 min to show up on OpenSea. Here's the link: "

// Links builds gallery URLs for the collection and its tokens.
type Links struct {
	GalleryBase string
	Contract    string
	Collection  string
}

// Asset is the gallery page of one token: <base>/assets/<contract>/<tokenId>.
func (l Links) Asset(tokenID *big.Int) string {
	id := "0"
	if tokenID != nil {
		id = tokenID.String()
	}
	return fmt.Sprintf("%s/assets/%s/%s", strings.TrimRight(l.GalleryBase, "/"), l.Contract, id)
}

// CollectionPage is the gallery page of the whole collection.
func (l Links) CollectionPage() string {
	return fmt.Sprintf("%s/collection/%s", strings.TrimRight(l.GalleryBase, "/"), l.Collection)
}
