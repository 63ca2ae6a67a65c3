package markets

// Mainnet defaults for the perpetuals program. The override file can replace
// any entry wholesale; oracle accounts live in Extras because the program's
// interface description names them but cannot derive them.
var defaultMarkets = []MarketConfig{
	{
		Symbol:       "SOL",
		Pool:         "5BUwFW4nRbftYTDMbgxykoFWqWHPzahFSNAaaaJtVKsq",
		BaseCustody:  "7xS2gz2bTp3fwCC7knJvUWTEU9Tycczu6VhJYKgi1wdz",
		QuoteCustody: "G18jKKXQwBbrHeiK3C9MRXhkHsLHf7XgCSisykV46EZa",
		BaseMint:     "So11111111111111111111111111111111111111112",
		QuoteMint:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		InputMint:    "So11111111111111111111111111111111111111112",
	},
	{
		Symbol:       "ETH",
		Pool:         "5BUwFW4nRbftYTDMbgxykoFWqWHPzahFSNAaaaJtVKsq",
		BaseCustody:  "AQCGyheWPLeo6Qp9WpYS9m3Qj479t7R636N9ey1rEjEn",
		QuoteCustody: "G18jKKXQwBbrHeiK3C9MRXhkHsLHf7XgCSisykV46EZa",
		BaseMint:     "7vfCXTUXx5WJV5JADk17DUJ4ksgau7utNKj4b963voxs",
		QuoteMint:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	},
	{
		Symbol:       "BTC",
		Pool:         "5BUwFW4nRbftYTDMbgxykoFWqWHPzahFSNAaaaJtVKsq",
		BaseCustody:  "5Pv3gM9JrFFH883SWAhvJC9RPYmo8UNxuFtv5bMMALkm",
		QuoteCustody: "G18jKKXQwBbrHeiK3C9MRXhkHsLHf7XgCSisykV46EZa",
		BaseMint:     "3NZ9JMVBmGAqocybic2c7LQCJScmgsAZ6vQqTDzcqmJh",
		QuoteMint:    "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	},
}
