package translate

// Temperature for translation completions. Low enough to stay literal.
const Temperature = 0.3
